// Package pgvector stores chunks in PostgreSQL with the pgvector extension.
// Similarity ordering runs in the database with the cosine distance operator.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type collectionRow struct {
	Name string `gorm:"primaryKey"`
	Dims int    `gorm:"not null"`
}

func (collectionRow) TableName() string { return "citewise_collections" }

type chunkRow struct {
	Collection  string     `gorm:"primaryKey"`
	ChunkID     string     `gorm:"primaryKey"`
	Source      string     `gorm:"not null;index:idx_citewise_chunks_source"`
	PageStart   int        `gorm:"not null"`
	PageEnd     int        `gorm:"not null"`
	Seq         int        `gorm:"not null"`
	Text        string     `gorm:"type:text;not null"`
	ContentHash string     `gorm:"not null"`
	Embedding   pgv.Vector `gorm:"type:vector;not null"`
}

func (chunkRow) TableName() string { return "citewise_chunks" }

// scoredRow is a chunk with its similarity to the query vector.
type scoredRow struct {
	chunkRow
	Score float64
}

// Store implements vectorstore.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ vectorstore.Store = (*Store)(nil)

// Open connects to dsn and creates the extension and tables if needed.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is empty", domain.ErrConfiguration)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to postgres: %v", domain.ErrStoreUnavailable, err)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		closeDB(db)
		return nil, fmt.Errorf("%w: enabling pgvector: %v", domain.ErrStoreUnavailable, err)
	}
	if err := db.AutoMigrate(&collectionRow{}, &chunkRow{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("%w: migrating: %v", domain.ErrStoreUnavailable, err)
	}
	return &Store{db: db}, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Close() error {
	return closeDB(s.db)
}

func (s *Store) Upsert(ctx context.Context, collection string, chunks []domain.EmbeddedChunk) error {
	return s.write(ctx, collection, "", false, chunks)
}

func (s *Store) ReplaceSource(ctx context.Context, collection, source string, chunks []domain.EmbeddedChunk) error {
	return s.write(ctx, collection, source, true, chunks)
}

func (s *Store) write(ctx context.Context, collection, source string, replace bool, chunks []domain.EmbeddedChunk) error {
	if err := vectorstore.ValidateCollectionName(collection); err != nil {
		return err
	}
	dims, err := vectorstore.ValidateChunks(chunks)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var col collectionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", collection).Take(&col).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if len(chunks) == 0 {
				return nil
			}
			// A concurrent writer may create it first; its dims then win.
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&collectionRow{Name: collection, Dims: dims}).Error
			if err != nil {
				return fmt.Errorf("creating collection %s: %w", collection, err)
			}
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", collection).Take(&col).Error
		}
		if err != nil {
			return fmt.Errorf("%w: reading collection %s: %v", domain.ErrStoreUnavailable, collection, err)
		}
		if dims != 0 && col.Dims != dims {
			return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, got %d", domain.ErrConfiguration, collection, col.Dims, dims)
		}

		if replace {
			if err := tx.Where("collection = ? AND source = ?", collection, source).Delete(&chunkRow{}).Error; err != nil {
				return fmt.Errorf("deleting chunks of %s: %w", source, err)
			}
		}
		if len(chunks) == 0 {
			return nil
		}

		rows := make([]chunkRow, len(chunks))
		for i, c := range chunks {
			rows[i] = toRow(collection, c)
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "chunk_id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 500).Error
		if err != nil {
			return fmt.Errorf("upserting chunks: %w", err)
		}
		return nil
	})
}

func (s *Store) Query(ctx context.Context, collections []string, vector []float32, topK int) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}

	db := s.db.WithContext(ctx)
	query := pgv.NewVector(vector)

	var merged []domain.Match
	for _, name := range vectorstore.Dedupe(collections) {
		var col collectionRow
		err := db.Where("name = ?", name).Take(&col).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading collection %s: %v", domain.ErrStoreUnavailable, name, err)
		}
		if col.Dims != len(vector) {
			return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d", domain.ErrConfiguration, len(vector), name, col.Dims)
		}

		var rows []scoredRow
		err = db.Model(&chunkRow{}).
			Select("*, 1 - (embedding <=> ?) AS score", query).
			Where("collection = ?", name).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:                "embedding <=> ?, page_start, source, chunk_id",
				Vars:               []any{query},
				WithoutParentheses: true,
			}}).
			Limit(topK).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("%w: searching %s: %v", domain.ErrStoreUnavailable, name, err)
		}
		for _, r := range rows {
			merged = append(merged, r.match())
		}
	}
	return vectorstore.TopK(merged, topK), nil
}

func (s *Store) SourceHash(ctx context.Context, collection, source string) (string, bool, error) {
	var row chunkRow
	err := s.db.WithContext(ctx).
		Select("content_hash").
		Where("collection = ? AND source = ?", collection, source).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading source hash: %v", domain.ErrStoreUnavailable, err)
	}
	return row.ContentHash, true, nil
}

func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", name).Delete(&chunkRow{}).Error; err != nil {
			return fmt.Errorf("%w: deleting chunks of %s: %v", domain.ErrStoreUnavailable, name, err)
		}
		if err := tx.Where("name = ?", name).Delete(&collectionRow{}).Error; err != nil {
			return fmt.Errorf("%w: deleting collection %s: %v", domain.ErrStoreUnavailable, name, err)
		}
		return nil
	})
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names := []string{}
	err := s.db.WithContext(ctx).Model(&collectionRow{}).Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("%w: listing collections: %v", domain.ErrStoreUnavailable, err)
	}
	return names, nil
}

func toRow(collection string, c domain.EmbeddedChunk) chunkRow {
	return chunkRow{
		Collection:  collection,
		ChunkID:     c.ID,
		Source:      c.Source,
		PageStart:   c.PageStart,
		PageEnd:     c.PageEnd,
		Seq:         c.Index,
		Text:        c.Text,
		ContentHash: c.ContentHash,
		Embedding:   pgv.NewVector(c.Vector),
	}
}

func (r scoredRow) match() domain.Match {
	return domain.Match{
		ChunkID:    r.ChunkID,
		Collection: r.Collection,
		Source:     r.Source,
		PageStart:  r.PageStart,
		PageEnd:    r.PageEnd,
		Text:       r.Text,
		Score:      r.Score,
	}
}
