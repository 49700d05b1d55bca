package socket

import "encoding/json"

// MessageType identifies the kind of a websocket message.
type MessageType string

const (
	// Client -> Server
	TypeJoinDocument   MessageType = "join_document"
	TypeLeaveDocument  MessageType = "leave_document"
	TypeTextChange     MessageType = "text_change"
	TypeTitleChange    MessageType = "title_change"
	TypeCursorPosition MessageType = "cursor_position"

	// Server -> Client
	TypeConnected      MessageType = "connected"
	TypeDocumentState  MessageType = "document_state"
	TypeContentUpdated MessageType = "content_updated"
	TypeTitleUpdated   MessageType = "title_updated"
	TypeCursorUpdated  MessageType = "cursor_updated"
	TypeUserJoined     MessageType = "user_joined"
	TypeUserLeft       MessageType = "user_left"
	TypeError          MessageType = "error"
)

// Envelope wraps every websocket message with a type field. Exactly one
// envelope is carried per websocket text frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinDocumentMessage asks the server to register the sender under a
// document. The user id is self-assigned by the client process.
type JoinDocumentMessage struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

// LeaveDocumentMessage asks the server to drop the sender's membership.
type LeaveDocumentMessage struct {
	DocumentID string `json:"document_id"`
}

// TextChangeMessage carries the full replacement content of a document.
type TextChangeMessage struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	UserID     string `json:"user_id"`
}

// TitleChangeMessage carries the full replacement title of a document.
type TitleChangeMessage struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	UserID     string `json:"user_id"`
}

// CursorPositionMessage carries a transient cursor/selection update.
type CursorPositionMessage struct {
	DocumentID     string `json:"document_id"`
	Position       int    `json:"position"`
	SelectionStart int    `json:"selection_start"`
	SelectionEnd   int    `json:"selection_end"`
}

// ConnectedMessage is the server's hello, emitted once per connection
// immediately after the websocket upgrade.
type ConnectedMessage struct {
	SessionID string `json:"session_id"`
}

// DocumentStateMessage is the full snapshot sent to a participant that has
// just joined a document.
type DocumentStateMessage struct {
	DocumentID   string   `json:"document_id"`
	Content      string   `json:"content"`
	Title        string   `json:"title"`
	LastModified float64  `json:"last_modified"`
	ActiveUsers  []string `json:"active_users"`
}

// ContentUpdatedMessage is fanned out to the other members of a document
// after a text change.
type ContentUpdatedMessage struct {
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	UserID     string  `json:"user_id"`
	Timestamp  float64 `json:"timestamp"`
}

// TitleUpdatedMessage is fanned out after a title change.
type TitleUpdatedMessage struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	UserID     string  `json:"user_id"`
	Timestamp  float64 `json:"timestamp"`
}

// CursorUpdatedMessage is fanned out after a cursor move. It is never
// stored and never replayed to late joiners.
type CursorUpdatedMessage struct {
	DocumentID     string  `json:"document_id"`
	UserID         string  `json:"user_id"`
	Position       int     `json:"position"`
	SelectionStart int     `json:"selection_start"`
	SelectionEnd   int     `json:"selection_end"`
	Timestamp      float64 `json:"timestamp"`
}

// PresenceMessage announces a join or a leave to the other members of a
// document. The envelope type distinguishes the two.
type PresenceMessage struct {
	UserID     string  `json:"user_id"`
	DocumentID string  `json:"document_id"`
	Timestamp  float64 `json:"timestamp"`
}

// ErrorMessage reports a protocol-level problem back to one client. It
// never closes the connection.
type ErrorMessage struct {
	Message string `json:"message"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(msgType MessageType, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: msgType, Data: raw}, nil
}

// MarshalEnvelope is NewEnvelope plus the final JSON encoding, for the
// common send path.
func MarshalEnvelope(msgType MessageType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope parses a raw websocket frame into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
