package store

import (
	"time"

	"github.com/google/uuid"
)

// Document is the client's local copy of a document. The store is an
// approximation of shared truth, not a source of it; the collaboration
// layer overwrites it freely.
type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
}

// NewDocument mints a document with a fresh id. An empty title becomes
// "Untitled Document".
func NewDocument(title string) Document {
	if title == "" {
		title = "Untitled Document"
	}
	now := time.Now()
	return Document{
		ID:           uuid.NewString(),
		Title:        title,
		Created:      now,
		LastModified: now,
	}
}
