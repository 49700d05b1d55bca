package socket

import (
	"sort"
	"sync"

	"github.com/rs/xid"
)

// Participant is one client connection's membership record. A participant
// belongs to at most one document at a time; reconnecting under the same
// user id produces a brand new Participant.
type Participant struct {
	SessionID string
	UserID    string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewParticipant() *Participant {
	return &Participant{
		SessionID: xid.New().String(),
		send:      make(chan []byte, 256),
	}
}

// Deliver queues a frame for the participant's write pump without blocking.
// It reports false when the send buffer is full or the participant has been
// closed. Delivery and Close share a lock, so a frame dispatched after a
// disconnect is dropped instead of hitting a closed channel.
func (p *Participant) Deliver(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

// Close shuts the send channel, terminating the write pump. Safe to call
// more than once.
func (p *Participant) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}

// Closed reports whether the participant has been torn down.
func (p *Participant) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Registry owns the mapping from document id to the set of participants
// currently joined to it. Every mutation is atomic under the registry's
// lock; an entry with zero members is deleted immediately.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]map[*Participant]bool
	docs  map[*Participant]string
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[*Participant]bool),
		docs:  make(map[*Participant]string),
	}
}

// Join registers the participant under the document, creating the entry if
// absent, and returns the members that were present before this join. A
// participant still joined to another document is removed from it first.
func (r *Registry) Join(docID string, p *Participant) []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(p)

	room := r.rooms[docID]
	if room == nil {
		room = make(map[*Participant]bool)
		r.rooms[docID] = room
	}

	others := make([]*Participant, 0, len(room))
	for member := range room {
		others = append(others, member)
	}

	room[p] = true
	r.docs[p] = docID
	return others
}

// Leave removes the participant from whatever document it was joined to
// and returns that document's id plus the remaining members. A participant
// that was not joined anywhere yields ("", nil).
func (r *Registry) Leave(p *Participant) (string, []*Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(p)
}

func (r *Registry) leaveLocked(p *Participant) (string, []*Participant) {
	docID, ok := r.docs[p]
	if !ok {
		return "", nil
	}
	delete(r.docs, p)
	delete(r.rooms[docID], p)

	if len(r.rooms[docID]) == 0 {
		delete(r.rooms, docID)
		return docID, nil
	}

	remaining := make([]*Participant, 0, len(r.rooms[docID]))
	for member := range r.rooms[docID] {
		remaining = append(remaining, member)
	}
	return docID, remaining
}

// MembersOf returns the participants currently joined to the document,
// empty if the document has no entry.
func (r *Registry) MembersOf(docID string) []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]*Participant, 0, len(r.rooms[docID]))
	for member := range r.rooms[docID] {
		members = append(members, member)
	}
	return members
}

// DocumentOf returns the document the participant is joined to, if any.
func (r *Registry) DocumentOf(p *Participant) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docID, ok := r.docs[p]
	return docID, ok
}

// ActiveUserIDs returns the sorted user ids of the document's members.
func (r *Registry) ActiveUserIDs(docID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.rooms[docID]))
	for member := range r.rooms[docID] {
		ids = append(ids, member.UserID)
	}
	sort.Strings(ids)
	return ids
}

// Counts reports the number of documents with at least one member and the
// total number of joined participants.
func (r *Registry) Counts() (documents, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.docs)
}
