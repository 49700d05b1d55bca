package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFileReadsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "docs.json"))

	docs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.json")
	s := NewFileStore(path)

	a := NewDocument("First")
	b := NewDocument("Second")
	b.Content = "body"
	require.NoError(t, s.Save([]Document{a, b}))

	docs, err := s.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)

	got, err := s.Load(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.Equal(t, "body", got.Content)

	// Save replaces the list wholesale.
	require.NoError(t, s.Save([]Document{a}))
	_, err = s.Load(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "docs.json"))

	require.NoError(t, s.Save([]Document{NewDocument("x")}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "docs.json", entries[0].Name())
}

func TestFileStoreCorruptFileSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).List()
	assert.Error(t, err)
}

func TestNewDocumentDefaults(t *testing.T) {
	doc := NewDocument("")
	assert.Equal(t, "Untitled Document", doc.Title)
	assert.NotEmpty(t, doc.ID)

	other := NewDocument("")
	assert.NotEqual(t, doc.ID, other.ID)
}
