package socket

import (
	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

// Relay fans a participant's edits out to the other members of its
// document. Content and title changes update the snapshot cache first
// (last-writer-wins, no merging); cursor moves are transient and touch no
// state. Edits from a participant that is not joined anywhere are dropped
// without a reply.
type Relay struct {
	registry *Registry
	state    *StateCache

	// evict is called when a recipient's send buffer is full. The hub
	// supplies its own teardown so a lagging client cannot stall fan-out.
	evict func(*Participant)
}

func NewRelay(registry *Registry, state *StateCache, evict func(*Participant)) *Relay {
	return &Relay{registry: registry, state: state, evict: evict}
}

// HandleContentChange stamps and stores the new content, then delivers it
// to every other member.
func (rl *Relay) HandleContentChange(p *Participant, content string) {
	docID, ok := rl.registry.DocumentOf(p)
	if !ok {
		logger.Sugar.Debugf("Dropping text change from non-member %s", p.SessionID)
		return
	}

	ts := Now()
	rl.state.SetContent(docID, content, ts)

	frame, err := MarshalEnvelope(TypeContentUpdated, ContentUpdatedMessage{
		DocumentID: docID,
		Content:    content,
		UserID:     p.UserID,
		Timestamp:  ts,
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling content update: %v", err)
		return
	}
	rl.fanOut(docID, p, frame)
	logger.Sugar.Debugf("Text change in %s by %s: %d characters", docID, p.UserID, len(content))
}

// HandleTitleChange is HandleContentChange for titles.
func (rl *Relay) HandleTitleChange(p *Participant, title string) {
	docID, ok := rl.registry.DocumentOf(p)
	if !ok {
		logger.Sugar.Debugf("Dropping title change from non-member %s", p.SessionID)
		return
	}

	ts := Now()
	rl.state.SetTitle(docID, title, ts)

	frame, err := MarshalEnvelope(TypeTitleUpdated, TitleUpdatedMessage{
		DocumentID: docID,
		Title:      title,
		UserID:     p.UserID,
		Timestamp:  ts,
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling title update: %v", err)
		return
	}
	rl.fanOut(docID, p, frame)
}

// HandleCursorChange delivers a transient position update. Nothing is
// stored; late joiners never see it.
func (rl *Relay) HandleCursorChange(p *Participant, msg CursorPositionMessage) {
	docID, ok := rl.registry.DocumentOf(p)
	if !ok {
		return
	}

	frame, err := MarshalEnvelope(TypeCursorUpdated, CursorUpdatedMessage{
		DocumentID:     docID,
		UserID:         p.UserID,
		Position:       msg.Position,
		SelectionStart: msg.SelectionStart,
		SelectionEnd:   msg.SelectionEnd,
		Timestamp:      Now(),
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling cursor update: %v", err)
		return
	}
	rl.fanOut(docID, p, frame)
}

// fanOut delivers one marshalled frame to every member of the document
// except the sender. Exclusion is by participant, not user id: two
// connections sharing a user id still hear each other.
func (rl *Relay) fanOut(docID string, sender *Participant, frame []byte) {
	for _, member := range rl.registry.MembersOf(docID) {
		if member == sender {
			continue
		}
		if !member.Deliver(frame) {
			logger.Sugar.Warnf("Participant %s's send buffer is full, evicting", member.SessionID)
			if rl.evict != nil {
				rl.evict(member)
			}
		}
	}
}
