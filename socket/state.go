package socket

import (
	"sync"
	"time"
)

// Snapshot is the server's latest-known copy of a document. It is the
// merge point handed to joining participants; whichever change the relay
// processed last wins outright.
type Snapshot struct {
	Content      string
	Title        string
	LastModified float64
}

// StateCache holds the in-memory snapshots. Content here never outlives
// the process; durability belongs to each client's own document store.
type StateCache struct {
	mu   sync.Mutex
	docs map[string]Snapshot
}

func NewStateCache() *StateCache {
	return &StateCache{docs: make(map[string]Snapshot)}
}

// Get returns the snapshot for the document and whether one exists.
func (c *StateCache) Get(docID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.docs[docID]
	return snap, ok
}

// SetContent replaces the document's content.
func (c *StateCache) SetContent(docID, content string, ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.docs[docID]
	snap.Content = content
	snap.LastModified = ts
	c.docs[docID] = snap
}

// SetTitle replaces the document's title.
func (c *StateCache) SetTitle(docID, title string, ts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.docs[docID]
	snap.Title = title
	snap.LastModified = ts
	c.docs[docID] = snap
}

// Ensure creates an empty snapshot for the document if none exists, so a
// first joiner gets an empty document rather than nothing.
func (c *StateCache) Ensure(docID string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.docs[docID]
	if !ok {
		snap = Snapshot{LastModified: Now()}
		c.docs[docID] = snap
	}
	return snap
}

// Len reports how many documents have a snapshot.
func (c *StateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

// Now is the wire timestamp: unix seconds with fractional precision.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
