package socket

import (
	"encoding/json"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

// Hub is the server's coordination point. It owns the Session Registry and
// the snapshot cache and drives the Presence tracker and the Edit Relay.
// All registry-mutating traffic flows through the single Run goroutine, so
// membership changes and fan-outs are processed one at a time and a join
// can never race a concurrent edit's recipient list.
type Hub struct {
	registry *Registry
	state    *StateCache
	presence *Presence
	relay    *Relay

	inbound    chan inboundMessage
	unregister chan *Participant
}

type inboundMessage struct {
	participant *Participant
	envelope    *Envelope
}

func NewHub() *Hub {
	registry := NewRegistry()
	state := NewStateCache()

	h := &Hub{
		registry:   registry,
		state:      state,
		presence:   NewPresence(registry, state),
		inbound:    make(chan inboundMessage, 64),
		unregister: make(chan *Participant),
	}
	h.relay = NewRelay(registry, state, h.teardown)
	return h
}

// Run processes inbound messages and disconnects until the process exits.
// Call it once, in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case msg := <-h.inbound:
			h.dispatch(msg.participant, msg.envelope)
		case p := <-h.unregister:
			h.teardown(p)
		}
	}
}

func (h *Hub) dispatch(p *Participant, env *Envelope) {
	// The inbound channel is buffered, so a participant's last frames can
	// still be queued when its unregister is processed. Their sender is
	// gone; drop them.
	if p.Closed() {
		return
	}

	switch env.Type {
	case TypeJoinDocument:
		var msg JoinDocumentMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			h.sendError(p, "invalid join_document payload")
			return
		}
		if msg.DocumentID == "" {
			h.sendError(p, "document_id is required")
			return
		}
		if msg.UserID != "" {
			p.UserID = msg.UserID
		} else if p.UserID == "" {
			p.UserID = "user_" + p.SessionID[:8]
		}
		// Joining a new document implies leaving the previous one; both run
		// here in order, so the participant is never in two entries.
		h.presence.HandleLeave(p)
		h.presence.HandleJoin(p, msg.DocumentID)

	case TypeLeaveDocument:
		var msg LeaveDocumentMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			h.sendError(p, "invalid leave_document payload")
			return
		}
		h.presence.HandleLeave(p)

	case TypeTextChange:
		var msg TextChangeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			h.sendError(p, "invalid text_change payload")
			return
		}
		h.relay.HandleContentChange(p, msg.Content)

	case TypeTitleChange:
		var msg TitleChangeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			h.sendError(p, "invalid title_change payload")
			return
		}
		h.relay.HandleTitleChange(p, msg.Title)

	case TypeCursorPosition:
		var msg CursorPositionMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			h.sendError(p, "invalid cursor_position payload")
			return
		}
		h.relay.HandleCursorChange(p, msg)

	default:
		h.sendError(p, "unknown message type: "+string(env.Type))
	}
}

// teardown is the single exit path for a participant: implicit leave plus
// send-channel close. Safe to hit twice for the same participant.
func (h *Hub) teardown(p *Participant) {
	h.presence.HandleLeave(p)
	p.Close()
}

func (h *Hub) sendError(p *Participant, message string) {
	frame, err := MarshalEnvelope(TypeError, ErrorMessage{Message: message})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling error message: %v", err)
		return
	}
	p.Deliver(frame)
}

// Document exposes a snapshot for the read-only HTTP fallback endpoint.
func (h *Hub) Document(docID string) (Snapshot, bool) {
	return h.state.Get(docID)
}

// Stats backs the health endpoint.
type Stats struct {
	ActiveDocuments int `json:"active_documents"`
	TotalUsers      int `json:"total_users"`
}

func (h *Hub) Stats() Stats {
	_, participants := h.registry.Counts()
	return Stats{
		ActiveDocuments: h.state.Len(),
		TotalUsers:      participants,
	}
}
