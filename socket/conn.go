package socket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from any frontend dev server.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conn struct {
	hub         *Hub
	ws          *websocket.Conn
	participant *Participant
}

// ServeWs upgrades an HTTP request to a websocket connection and starts
// the read/write pumps. The server sends a connected hello immediately;
// the participant joins nothing until it asks to.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	p := NewParticipant()
	c := &conn{hub: hub, ws: ws, participant: p}

	hello, err := MarshalEnvelope(TypeConnected, ConnectedMessage{SessionID: p.SessionID})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling hello: %v", err)
		ws.Close()
		return
	}
	p.Deliver(hello)

	logger.Sugar.Infof("Client connected: %s", p.SessionID)

	go c.writePump()
	go c.readPump()
}

func (c *conn) readPump() {
	defer func() {
		// Transport close is the implicit leave; the hub notifies the
		// remaining members.
		c.hub.unregister <- c.participant
		c.ws.Close()
		logger.Sugar.Infof("Client disconnected: %s", c.participant.SessionID)
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		env, err := ParseEnvelope(raw)
		if err != nil {
			// Malformed frames are dropped with a diagnostic; the
			// connection stays up.
			logger.Sugar.Errorf("Error unmarshalling message from %s: %v", c.participant.SessionID, err)
			c.hub.sendError(c.participant, "malformed message")
			continue
		}

		c.hub.inbound <- inboundMessage{participant: c.participant, envelope: env}
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.participant.send:
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		}
	}
}
