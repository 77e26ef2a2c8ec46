// Package sqlite is a persistent vector store on a single SQLite file.
// Vectors are stored as little-endian float32 blobs and scored in Go.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
	"github.com/dgallion1/citewise/internal/vectorstore/sqlite/migrations"
)

// DBFile is the database file name inside the store directory.
const DBFile = "citewise.db"

// Store is a SQLite-backed vectorstore.Store.
type Store struct {
	db *sql.DB
}

var _ vectorstore.Store = (*Store)(nil)

// Open creates or opens the store in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: vector store location is empty", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", domain.ErrStoreUnavailable, dir, err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", domain.ErrStoreUnavailable, err)
	}

	s := &Store{db: db}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %v", domain.ErrStoreUnavailable, err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	return s.write(ctx, collection, "", false, chunks)
}

func (s *Store) ReplaceSource(ctx context.Context, collection, source string, chunks []domain.EmbeddedChunk) error {
	return s.write(ctx, collection, source, true, chunks)
}

// write runs the whole call in one transaction.
func (s *Store) write(ctx context.Context, collection, source string, replace bool, chunks []domain.EmbeddedChunk) error {
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return err
	}
	dims, err := vectorstore.ValidateChunks(chunks)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	existing, err := collectionDims(ctx, tx, collection)
	if err != nil {
		return err
	}
	switch {
	case existing == 0 && len(chunks) == 0:
		return nil
	case existing == 0:
		if _, err := tx.ExecContext(ctx, "INSERT INTO collections (name, dims) VALUES (?, ?)", collection, dims); err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
	case dims != 0 && existing != dims:
		return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, got %d", domain.ErrConfiguration, collection, existing, dims)
	}

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ? AND source = ?", collection, source); err != nil {
			return fmt.Errorf("deleting chunks of %s: %w", source, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, chunk_id, source, page_start, page_end, seq, text, content_hash, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, chunk_id) DO UPDATE SET
			source = excluded.source,
			page_start = excluded.page_start,
			page_end = excluded.page_end,
			seq = excluded.seq,
			text = excluded.text,
			content_hash = excluded.content_hash,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, collection, c.ID, c.Source, c.PageStart, c.PageEnd, c.Index, c.Text, c.ContentHash, encodeVector(c.Vector)); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func collectionDims(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	var dims int
	err := tx.QueryRowContext(ctx, "SELECT dims FROM collections WHERE name = ?", name).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading collection %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	return dims, nil
}

func (s *Store) Query(ctx context.Context, collections []string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}

	var merged []domain.Match
	for _, name := range vectorstore.Dedupe(collections) {
		matches, err := s.scan(ctx, name, vector)
		if err != nil {
			return nil, err
		}
		merged = append(merged, vectorstore.TopK(matches, topK)...)
	}
	return vectorstore.TopK(merged, topK), nil
}

// scan scores every chunk of one collection against vector.
func (s *Store) scan(ctx context.Context, collection string, vector []float32) ([]domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, source, page_start, page_end, text, embedding
		FROM chunks WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", domain.ErrStoreUnavailable, collection, err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			m    domain.Match
			blob []byte
		)
		if err := rows.Scan(&m.ChunkID, &m.Source, &m.PageStart, &m.PageEnd, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		stored := decodeVector(blob)
		if len(stored) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d", domain.ErrConfiguration, len(vector), collection, len(stored))
		}
		m.Collection = collection
		m.Score = vectorstore.Cosine(vector, stored)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return matches, nil
}

func (s *Store) SourceHash(ctx context.Context, collection, source string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT content_hash FROM chunks WHERE collection = ? AND source = ? LIMIT 1",
		collection, source,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading source hash: %v", domain.ErrStoreUnavailable, err)
	}
	return hash, true, nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", name); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
