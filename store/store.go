package store

import "errors"

// ErrNotFound is returned by Load when no document has the given id.
var ErrNotFound = errors.New("document not found")

// Store is the local document persistence collaborator: load a document by
// id, save the whole list. Whole-list save mirrors how the original kept
// its documents as one serialized blob.
type Store interface {
	List() ([]Document, error)
	Load(id string) (Document, error)
	Save(docs []Document) error
}
