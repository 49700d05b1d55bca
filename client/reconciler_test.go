package client

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luis-arellano/simple-google-docs/socket"
	"github.com/luis-arellano/simple-google-docs/store"
)

// memStore is an in-memory store.Store for reconciler unit tests.
type memStore struct {
	mu   sync.Mutex
	docs []store.Document
}

func (s *memStore) List() ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Document(nil), s.docs...), nil
}

func (s *memStore) Load(id string) (store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return store.Document{}, store.ErrNotFound
}

func (s *memStore) Save(docs []store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append([]store.Document(nil), docs...)
	return nil
}

// offlineReconciler builds a reconciler over a channel that never connects.
// Open still records the document locally; the join itself fails with
// ErrNotConnected, which these tests ignore on purpose.
func offlineReconciler(t *testing.T) (*Reconciler, *Channel, *memStore) {
	t.Helper()
	ch := NewChannel("ws://unused/ws")
	docs := &memStore{}
	rec := NewReconciler(ch, docs)
	require.ErrorIs(t, rec.Open("doc1"), ErrNotConnected)
	return rec, ch, docs
}

func TestReconcilerAppliesRemoteContent(t *testing.T) {
	rec, ch, docs := offlineReconciler(t)

	rec.ApplyContentUpdate(socket.ContentUpdatedMessage{
		DocumentID: "doc1",
		Content:    "from remote",
		UserID:     "someone-else",
		Timestamp:  socket.Now(),
	})

	doc, err := docs.Load("doc1")
	require.NoError(t, err)
	assert.Equal(t, "from remote", doc.Content)

	// Our own echo must not be applied.
	rec.ApplyContentUpdate(socket.ContentUpdatedMessage{
		DocumentID: "doc1",
		Content:    "echo",
		UserID:     ch.UserID(),
	})
	doc, _ = docs.Load("doc1")
	assert.Equal(t, "from remote", doc.Content)

	// Updates for other documents are ignored.
	rec.ApplyContentUpdate(socket.ContentUpdatedMessage{
		DocumentID: "doc2",
		Content:    "elsewhere",
		UserID:     "someone-else",
	})
	doc, _ = docs.Load("doc1")
	assert.Equal(t, "from remote", doc.Content)
}

func TestReconcilerAppliesRemoteTitle(t *testing.T) {
	rec, _, docs := offlineReconciler(t)

	rec.ApplyTitleUpdate(socket.TitleUpdatedMessage{
		DocumentID: "doc1",
		Title:      "Renamed",
		UserID:     "someone-else",
		Timestamp:  socket.Now(),
	})

	doc, err := docs.Load("doc1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", doc.Title)
}

func TestReconcilerSnapshotOverwritesUnconditionally(t *testing.T) {
	rec, _, docs := offlineReconciler(t)

	require.NoError(t, rec.SetContent("local draft"))
	rec.ApplyUserJoined(socket.PresenceMessage{DocumentID: "doc1", UserID: "stale"})

	rec.ApplySnapshot(socket.DocumentStateMessage{
		DocumentID:   "doc1",
		Content:      "server truth",
		Title:        "Server Title",
		LastModified: socket.Now(),
		ActiveUsers:  []string{"B", "A"},
	})

	doc, err := docs.Load("doc1")
	require.NoError(t, err)
	assert.Equal(t, "server truth", doc.Content)
	assert.Equal(t, "Server Title", doc.Title)

	// The active-user list is replaced wholesale, not merged.
	assert.Equal(t, []string{"A", "B"}, rec.ActiveUsers())
}

func TestReconcilerPresenceIsIdempotent(t *testing.T) {
	rec, _, _ := offlineReconciler(t)

	rec.ApplyUserJoined(socket.PresenceMessage{DocumentID: "doc1", UserID: "B"})
	rec.ApplyUserJoined(socket.PresenceMessage{DocumentID: "doc1", UserID: "B"})
	assert.Equal(t, []string{"B"}, rec.ActiveUsers())

	rec.ApplyUserLeft(socket.PresenceMessage{DocumentID: "doc1", UserID: "B"})
	rec.ApplyUserLeft(socket.PresenceMessage{DocumentID: "doc1", UserID: "B"})
	assert.Empty(t, rec.ActiveUsers())

	// Presence for other documents is ignored.
	rec.ApplyUserJoined(socket.PresenceMessage{DocumentID: "doc2", UserID: "C"})
	assert.Empty(t, rec.ActiveUsers())
}

func TestReconcilerLocalEditsWriteThroughWhileOffline(t *testing.T) {
	rec, _, docs := offlineReconciler(t)

	require.NoError(t, rec.SetContent("typed offline"))
	require.NoError(t, rec.SetTitle("Offline Title"))

	doc, err := docs.Load("doc1")
	require.NoError(t, err)
	assert.Equal(t, "typed offline", doc.Content)
	assert.Equal(t, "Offline Title", doc.Title)

	// Cursor moves are never stored.
	rec.MoveCursor(3, 3, 7)
	after, _ := docs.Load("doc1")
	assert.Equal(t, doc.Content, after.Content)
}

func TestReconcilerCreateDocumentMintsID(t *testing.T) {
	ch := NewChannel("ws://unused/ws")
	docs := &memStore{}
	rec := NewReconciler(ch, docs)

	doc, err := rec.CreateDocument("")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.NotEmpty(t, doc.ID)

	list, _ := docs.List()
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.Equal(t, "Untitled Document", list[0].Title)
}

// TestReconcilerEndToEnd runs two full client stacks against a real hub
// and checks that both local stores converge on the last written content.
func TestReconcilerEndToEnd(t *testing.T) {
	wsURL := startServer(t)

	storeA := store.NewFileStore(filepath.Join(t.TempDir(), "a.json"))
	storeB := store.NewFileStore(filepath.Join(t.TempDir(), "b.json"))

	chA := connect(t, wsURL)
	chB := connect(t, wsURL)
	recA := NewReconciler(chA, storeA)
	recB := NewReconciler(chB, storeB)

	require.NoError(t, recA.Open("doc1"))
	require.Eventually(t, func() bool {
		return len(chA.CurrentDocument()) > 0 && joinSettled(storeA, "doc1")
	}, 2*time.Second, 10*time.Millisecond, "A's snapshot should land in the store")

	require.NoError(t, recB.Open("doc1"))
	require.Eventually(t, func() bool {
		return len(recA.ActiveUsers()) == 1
	}, 2*time.Second, 10*time.Millisecond, "A should see B arrive")

	require.NoError(t, recA.SetContent("hello"))
	require.Eventually(t, func() bool {
		doc, err := storeB.Load("doc1")
		return err == nil && doc.Content == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, recB.SetContent("hello world"))
	require.Eventually(t, func() bool {
		doc, err := storeA.Load("doc1")
		return err == nil && doc.Content == "hello world"
	}, 2*time.Second, 10*time.Millisecond)

	// A leaves; B sees the departure.
	recA.Close()
	require.Eventually(t, func() bool {
		return len(recB.ActiveUsers()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func joinSettled(s store.Store, id string) bool {
	_, err := s.Load(id)
	return err == nil
}
