package socket

import (
	"sort"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

// Presence derives join/leave notifications from registry mutations. The
// joining participant gets the full document snapshot and nothing else;
// the participants that were already present get a join notice. Symmetric
// for leaves.
type Presence struct {
	registry *Registry
	state    *StateCache
}

func NewPresence(registry *Registry, state *StateCache) *Presence {
	return &Presence{registry: registry, state: state}
}

// HandleJoin registers the participant and sends the snapshot plus join
// notices. The snapshot's active_users lists the members that were present
// before this join, not the joiner itself.
func (pr *Presence) HandleJoin(p *Participant, docID string) {
	others := pr.registry.Join(docID, p)
	snap := pr.state.Ensure(docID)

	active := make([]string, 0, len(others))
	for _, member := range others {
		active = append(active, member.UserID)
	}
	sort.Strings(active)

	frame, err := MarshalEnvelope(TypeDocumentState, DocumentStateMessage{
		DocumentID:   docID,
		Content:      snap.Content,
		Title:        snap.Title,
		LastModified: snap.LastModified,
		ActiveUsers:  active,
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling document state: %v", err)
		return
	}
	if !p.Deliver(frame) {
		logger.Sugar.Warnf("Participant %s's send buffer was full for snapshot", p.SessionID)
	}

	if len(others) == 0 {
		return
	}
	pr.notify(TypeUserJoined, p, docID, others)
	logger.Sugar.Infof("User %s joined document %s", p.UserID, docID)
}

// HandleLeave removes the participant and notifies the remaining members,
// if any. A leave that empties the document tears the entry down silently.
func (pr *Presence) HandleLeave(p *Participant) {
	docID, remaining := pr.registry.Leave(p)
	if docID == "" {
		return
	}
	if len(remaining) == 0 {
		logger.Sugar.Infof("Closed empty document session: %s", docID)
		return
	}
	pr.notify(TypeUserLeft, p, docID, remaining)
	logger.Sugar.Infof("User %s left document %s", p.UserID, docID)
}

func (pr *Presence) notify(kind MessageType, p *Participant, docID string, recipients []*Participant) {
	frame, err := MarshalEnvelope(kind, PresenceMessage{
		UserID:     p.UserID,
		DocumentID: docID,
		Timestamp:  Now(),
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence message: %v", err)
		return
	}
	for _, member := range recipients {
		if !member.Deliver(frame) {
			logger.Sugar.Warnf("Participant %s's send buffer was full during presence update", member.SessionID)
		}
	}
}
