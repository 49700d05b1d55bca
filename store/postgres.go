package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/luis-arellano/simple-google-docs/pkg/logger"
)

// PostgresStore is the database-backed variant of the document store, for
// clients that want their local list to survive the machine. Save replaces
// the stored list wholesale, matching FileStore.
type PostgresStore struct {
	DB *sql.DB
}

// OpenPostgres connects and pings with a few retries to ride out
// temporary DNS or network blips.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the document database")
			return &PostgresStore{DB: db}, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	db.Close()
	return nil, fmt.Errorf("connect to database: %w", err)
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) List() ([]Document, error) {
	rows, err := s.DB.Query(`SELECT id, title, content, created_at, updated_at FROM documents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Created, &doc.LastModified); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) Load(id string) (Document, error) {
	var doc Document
	err := s.DB.QueryRow(`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = $1`, id).
		Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Created, &doc.LastModified)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("load document %s: %w", id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Save(docs []Document) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("save documents: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		_, err := tx.Exec(`INSERT INTO documents (id, title, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET title = $2, content = $3, updated_at = $5`,
			doc.ID, doc.Title, doc.Content, doc.Created, doc.LastModified)
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
	}

	// Documents removed from the list are removed from the table too.
	if _, err := tx.Exec(`DELETE FROM documents WHERE NOT (id = ANY($1))`, pq.Array(ids)); err != nil {
		return fmt.Errorf("prune documents: %w", err)
	}

	return tx.Commit()
}
