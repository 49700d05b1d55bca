package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the document list as one JSON file on disk. A missing
// file reads as an empty list; writes go through a temp file and a rename
// so a crash never leaves a half-written list behind.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) List() ([]Document, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document store: %w", err)
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse document store: %w", err)
	}
	return docs, nil
}

func (s *FileStore) Load(id string) (Document, error) {
	docs, err := s.List()
	if err != nil {
		return Document{}, err
	}
	for _, doc := range docs {
		if doc.ID == id {
			return doc, nil
		}
	}
	return Document{}, ErrNotFound
}

func (s *FileStore) Save(docs []Document) error {
	raw, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".documents-*")
	if err != nil {
		return fmt.Errorf("write document store: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write document store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write document store: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
