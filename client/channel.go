package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
	"github.com/luis-arellano/simple-google-docs/socket"
)

// State of the channel's connection to the server.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

var (
	ErrNotConnected = errors.New("channel is not connected")
	ErrConnecting   = errors.New("connect already in flight")
)

// Channel is one client process's logical connection to the collaboration
// server. It owns at most one current-document subscription and exposes
// typed send operations plus one handler slot per inbound message kind.
//
// There is no automatic reconnection: when the transport drops, the
// channel goes back to Disconnected and the caller decides whether to
// Connect and JoinDocument again.
type Channel struct {
	url    string
	userID string
	dialer *websocket.Dialer

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string
	currentDoc string

	handlers handlerTable
}

// handlerTable holds the single registered handler per message kind.
// Registering a handler replaces the previous one; this is deliberately
// not a multi-subscriber bus.
type handlerTable struct {
	connected     func()
	disconnected  func()
	contentUpdate func(socket.ContentUpdatedMessage)
	titleUpdate   func(socket.TitleUpdatedMessage)
	cursorUpdate  func(socket.CursorUpdatedMessage)
	documentState func(socket.DocumentStateMessage)
	userJoined    func(socket.PresenceMessage)
	userLeft      func(socket.PresenceMessage)
	protocolError func(socket.ErrorMessage)
}

// NewChannel creates a channel for the given websocket URL. The user id is
// an ephemeral per-process token; it is not an account and does not
// survive the process.
func NewChannel(url string) *Channel {
	return &Channel{
		url:    url,
		userID: "user_" + xid.New().String(),
		dialer: &websocket.Dialer{HandshakeTimeout: 20 * time.Second},
	}
}

// Connect dials the server and waits for its connected hello. Idempotent:
// an already connected channel returns immediately. On failure the channel
// stays Disconnected and the error is returned to the caller.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Connected:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.mu.Unlock()
		return ErrConnecting
	}
	c.state = Connecting
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	hello, err := c.awaitHello(ctx, conn)
	if err != nil {
		conn.Close()
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.send = make(chan []byte, 64)
	c.sessionID = hello.SessionID
	c.state = Connected
	onConnected := c.handlers.connected
	send := c.send
	c.mu.Unlock()

	go c.writeLoop(conn, send)
	go c.readLoop(conn)

	logger.Sugar.Infof("Connected to collaboration server, session %s", hello.SessionID)
	if onConnected != nil {
		onConnected()
	}
	return nil
}

func (c *Channel) awaitHello(ctx context.Context, conn *websocket.Conn) (socket.ConnectedMessage, error) {
	var hello socket.ConnectedMessage

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(20 * time.Second))
	}
	defer conn.SetReadDeadline(time.Time{})

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return hello, fmt.Errorf("await server hello: %w", err)
	}
	env, err := socket.ParseEnvelope(raw)
	if err != nil {
		return hello, fmt.Errorf("parse server hello: %w", err)
	}
	if env.Type != socket.TypeConnected {
		return hello, fmt.Errorf("unexpected first message %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, &hello); err != nil {
		return hello, fmt.Errorf("parse server hello: %w", err)
	}
	return hello, nil
}

// Disconnect closes the transport. The server treats the close as an
// implicit leave.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// JoinDocument subscribes the channel to a document. Joining while joined
// to a different document issues the leave first, on the same write queue,
// so the server never registers the participant under two documents.
// Joining the current document is a no-op.
func (c *Channel) JoinDocument(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return ErrNotConnected
	}
	if c.currentDoc == id {
		return nil
	}
	if c.currentDoc != "" {
		c.enqueueLocked(socket.TypeLeaveDocument, socket.LeaveDocumentMessage{DocumentID: c.currentDoc})
	}
	c.enqueueLocked(socket.TypeJoinDocument, socket.JoinDocumentMessage{DocumentID: id, UserID: c.userID})
	c.currentDoc = id
	return nil
}

// LeaveDocument drops the current subscription, if any.
func (c *Channel) LeaveDocument() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.currentDoc == "" {
		return
	}
	c.enqueueLocked(socket.TypeLeaveDocument, socket.LeaveDocumentMessage{DocumentID: c.currentDoc})
	c.currentDoc = ""
}

// SendContentChange sends the full replacement content of the current
// document. Silently a no-op when not joined, mirroring the server's drop
// policy for stray edits.
func (c *Channel) SendContentChange(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.currentDoc == "" {
		return
	}
	c.enqueueLocked(socket.TypeTextChange, socket.TextChangeMessage{
		DocumentID: c.currentDoc,
		Content:    content,
		UserID:     c.userID,
	})
}

// SendTitleChange sends the full replacement title of the current document.
func (c *Channel) SendTitleChange(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.currentDoc == "" {
		return
	}
	c.enqueueLocked(socket.TypeTitleChange, socket.TitleChangeMessage{
		DocumentID: c.currentDoc,
		Title:      title,
		UserID:     c.userID,
	})
}

// SendCursorPosition sends a transient cursor/selection update.
func (c *Channel) SendCursorPosition(position, selectionStart, selectionEnd int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected || c.currentDoc == "" {
		return
	}
	c.enqueueLocked(socket.TypeCursorPosition, socket.CursorPositionMessage{
		DocumentID:     c.currentDoc,
		Position:       position,
		SelectionStart: selectionStart,
		SelectionEnd:   selectionEnd,
	})
}

// enqueueLocked marshals and queues one frame. Callers hold c.mu, which is
// what makes queueing safe against a concurrent teardown. A full queue
// drops the frame; the next keystroke re-sends current state anyway.
func (c *Channel) enqueueLocked(kind socket.MessageType, payload interface{}) {
	frame, err := socket.MarshalEnvelope(kind, payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s: %v", kind, err)
		return
	}
	select {
	case c.send <- frame:
	default:
		logger.Sugar.Warnf("Send queue full, dropping %s", kind)
	}
}

func (c *Channel) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for frame := range send {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.teardown(conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := socket.ParseEnvelope(raw)
		if err != nil {
			logger.Sugar.Errorf("Error unmarshalling server message: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

// teardown runs once per connection, when its read loop exits. The current
// document is cleared: the server already dropped the membership on
// transport close, and a later JoinDocument must actually re-join.
func (c *Channel) teardown(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	c.currentDoc = ""
	close(c.send)
	onDisconnected := c.handlers.disconnected
	c.mu.Unlock()

	logger.Sugar.Info("Disconnected from collaboration server")
	if onDisconnected != nil {
		onDisconnected()
	}
}

func (c *Channel) dispatch(env *socket.Envelope) {
	c.mu.Lock()
	handlers := c.handlers
	c.mu.Unlock()

	switch env.Type {
	case socket.TypeContentUpdated:
		var msg socket.ContentUpdatedMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.contentUpdate != nil {
			handlers.contentUpdate(msg)
		}
	case socket.TypeTitleUpdated:
		var msg socket.TitleUpdatedMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.titleUpdate != nil {
			handlers.titleUpdate(msg)
		}
	case socket.TypeCursorUpdated:
		var msg socket.CursorUpdatedMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.cursorUpdate != nil {
			handlers.cursorUpdate(msg)
		}
	case socket.TypeDocumentState:
		var msg socket.DocumentStateMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.documentState != nil {
			handlers.documentState(msg)
		}
	case socket.TypeUserJoined:
		var msg socket.PresenceMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.userJoined != nil {
			handlers.userJoined(msg)
		}
	case socket.TypeUserLeft:
		var msg socket.PresenceMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && handlers.userLeft != nil {
			handlers.userLeft(msg)
		}
	case socket.TypeError:
		var msg socket.ErrorMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			logger.Sugar.Warnf("Server error: %s", msg.Message)
			if handlers.protocolError != nil {
				handlers.protocolError(msg)
			}
		}
	case socket.TypeConnected:
		// Hello frames are consumed during Connect; a stray one is harmless.
	default:
		logger.Sugar.Debugf("Ignoring unknown message type %q", env.Type)
	}
}

// OnConnected registers the connect handler, replacing any previous one.
func (c *Channel) OnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.connected = fn
}

// OnDisconnected registers the disconnect handler, replacing any previous one.
func (c *Channel) OnDisconnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.disconnected = fn
}

// OnContentUpdate registers the content handler, replacing any previous one.
func (c *Channel) OnContentUpdate(fn func(socket.ContentUpdatedMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.contentUpdate = fn
}

// OnTitleUpdate registers the title handler, replacing any previous one.
func (c *Channel) OnTitleUpdate(fn func(socket.TitleUpdatedMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.titleUpdate = fn
}

// OnCursorUpdate registers the cursor handler, replacing any previous one.
func (c *Channel) OnCursorUpdate(fn func(socket.CursorUpdatedMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.cursorUpdate = fn
}

// OnDocumentState registers the snapshot handler, replacing any previous one.
func (c *Channel) OnDocumentState(fn func(socket.DocumentStateMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.documentState = fn
}

// OnUserJoined registers the join-presence handler, replacing any previous one.
func (c *Channel) OnUserJoined(fn func(socket.PresenceMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.userJoined = fn
}

// OnUserLeft registers the leave-presence handler, replacing any previous one.
func (c *Channel) OnUserLeft(fn func(socket.PresenceMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.userLeft = fn
}

// OnError registers the protocol-error handler, replacing any previous one.
func (c *Channel) OnError(fn func(socket.ErrorMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.protocolError = fn
}

// UserID returns this process's ephemeral user token.
func (c *Channel) UserID() string { return c.userID }

// SessionID returns the server-assigned session id of the current
// connection, empty while disconnected.
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connected reports whether the channel is currently connected.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected
}

// CurrentDocument returns the id of the joined document, empty if none.
func (c *Channel) CurrentDocument() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentDoc
}
