package client

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
	"github.com/luis-arellano/simple-google-docs/socket"
	"github.com/luis-arellano/simple-google-docs/store"
)

// Reconciler sits between the channel and the local document store. Remote
// updates land in the store without being re-broadcast; local edits are
// written through optimistically and, when the channel is joined, sent out.
// The store is only an approximation of shared truth: snapshots from the
// server overwrite it unconditionally.
type Reconciler struct {
	channel *Channel
	docs    store.Store

	mu      sync.Mutex
	current store.Document
	open    bool
	active  map[string]bool
}

// NewReconciler wires the reconciler's handlers into the channel. Because
// handler registration replaces, a channel should feed exactly one
// reconciler.
func NewReconciler(channel *Channel, docs store.Store) *Reconciler {
	r := &Reconciler{
		channel: channel,
		docs:    docs,
		active:  make(map[string]bool),
	}

	channel.OnContentUpdate(r.ApplyContentUpdate)
	channel.OnTitleUpdate(r.ApplyTitleUpdate)
	channel.OnDocumentState(r.ApplySnapshot)
	channel.OnUserJoined(r.ApplyUserJoined)
	channel.OnUserLeft(r.ApplyUserLeft)
	return r
}

// Open joins the document collaboratively. A document unknown to the local
// store gets a fresh local record; the server's snapshot will fill it in.
func (r *Reconciler) Open(id string) error {
	doc, err := r.docs.Load(id)
	if errors.Is(err, store.ErrNotFound) {
		doc = store.Document{ID: id, Created: time.Now(), LastModified: time.Now()}
		if err := r.writeThrough(doc); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	r.mu.Lock()
	r.current = doc
	r.open = true
	r.active = make(map[string]bool)
	r.mu.Unlock()

	return r.channel.JoinDocument(id)
}

// Close leaves the current document but keeps the local copy.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.open = false
	r.active = make(map[string]bool)
	r.mu.Unlock()
	r.channel.LeaveDocument()
}

// CreateDocument mints a new local document and opens it.
func (r *Reconciler) CreateDocument(title string) (store.Document, error) {
	doc := store.NewDocument(title)
	if err := r.writeThrough(doc); err != nil {
		return store.Document{}, err
	}
	return doc, r.Open(doc.ID)
}

// SetContent applies a local edit: the store is updated immediately, then
// the change goes out if the channel is joined. No acknowledgement is
// awaited.
func (r *Reconciler) SetContent(content string) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return nil
	}
	r.current.Content = content
	r.current.LastModified = time.Now()
	doc := r.current
	r.mu.Unlock()

	if err := r.writeThrough(doc); err != nil {
		return err
	}
	r.channel.SendContentChange(content)
	return nil
}

// SetTitle is SetContent for titles.
func (r *Reconciler) SetTitle(title string) error {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return nil
	}
	r.current.Title = title
	r.current.LastModified = time.Now()
	doc := r.current
	r.mu.Unlock()

	if err := r.writeThrough(doc); err != nil {
		return err
	}
	r.channel.SendTitleChange(title)
	return nil
}

// MoveCursor sends the local cursor position. Cursor state is never
// stored.
func (r *Reconciler) MoveCursor(position, selectionStart, selectionEnd int) {
	r.channel.SendCursorPosition(position, selectionStart, selectionEnd)
}

// Document returns a copy of the open document.
func (r *Reconciler) Document() (store.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current, r.open
}

// ActiveUsers returns the sorted user ids currently present in the open
// document, excluding this client.
func (r *Reconciler) ActiveUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.active))
	for id := range r.active {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// ApplyContentUpdate applies a remote content update to the store. It is
// registered on the channel by NewReconciler; callers that wrap the
// channel's handler can invoke it directly.
func (r *Reconciler) ApplyContentUpdate(msg socket.ContentUpdatedMessage) {
	r.mu.Lock()
	// Only updates for the open document, and never our own echoes.
	if !r.open || msg.DocumentID != r.current.ID || msg.UserID == r.channel.UserID() {
		r.mu.Unlock()
		return
	}
	r.current.Content = msg.Content
	r.current.LastModified = wireTime(msg.Timestamp)
	doc := r.current
	r.mu.Unlock()

	// Store write only: the update came from the wire, it must not go back
	// out on it.
	if err := r.writeThrough(doc); err != nil {
		logger.Sugar.Errorf("Failed to store remote content for %s: %v", doc.ID, err)
	}
}

// ApplyTitleUpdate applies a remote title update to the store.
func (r *Reconciler) ApplyTitleUpdate(msg socket.TitleUpdatedMessage) {
	r.mu.Lock()
	if !r.open || msg.DocumentID != r.current.ID || msg.UserID == r.channel.UserID() {
		r.mu.Unlock()
		return
	}
	r.current.Title = msg.Title
	r.current.LastModified = wireTime(msg.Timestamp)
	doc := r.current
	r.mu.Unlock()

	if err := r.writeThrough(doc); err != nil {
		logger.Sugar.Errorf("Failed to store remote title for %s: %v", doc.ID, err)
	}
}

// ApplySnapshot overwrites local state wholesale: the snapshot is the
// server's merge point at join time.
func (r *Reconciler) ApplySnapshot(msg socket.DocumentStateMessage) {
	r.mu.Lock()
	if !r.open || msg.DocumentID != r.current.ID {
		r.mu.Unlock()
		return
	}
	r.current.Content = msg.Content
	r.current.Title = msg.Title
	r.current.LastModified = wireTime(msg.LastModified)
	r.active = make(map[string]bool, len(msg.ActiveUsers))
	for _, id := range msg.ActiveUsers {
		r.active[id] = true
	}
	doc := r.current
	r.mu.Unlock()

	if err := r.writeThrough(doc); err != nil {
		logger.Sugar.Errorf("Failed to store snapshot for %s: %v", doc.ID, err)
	}
}

// ApplyUserJoined marks a user as present. Idempotent.
func (r *Reconciler) ApplyUserJoined(msg socket.PresenceMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || msg.DocumentID != r.current.ID {
		return
	}
	r.active[msg.UserID] = true
}

// ApplyUserLeft marks a user as absent. Idempotent.
func (r *Reconciler) ApplyUserLeft(msg socket.PresenceMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || msg.DocumentID != r.current.ID {
		return
	}
	delete(r.active, msg.UserID)
}

// writeThrough replaces the document's record in the stored list, creating
// it if absent.
func (r *Reconciler) writeThrough(doc store.Document) error {
	docs, err := r.docs.List()
	if err != nil {
		return err
	}

	replaced := false
	for i := range docs {
		if docs[i].ID == doc.ID {
			docs[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		docs = append(docs, doc)
	}
	return r.docs.Save(docs)
}

func wireTime(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}
