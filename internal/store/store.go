package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ummah-sync/internal/db"
	"ummah-sync/internal/model"
)

// ErrNotFound is returned when the cache holds no record for a key. It is
// an explicit negative result, distinct from a failing lookup.
var ErrNotFound = errors.New("cache record not found")

// Entry is one record handed to ReplaceAll, in server order.
type Entry struct {
	ID      string
	Payload []byte
}

// Store defines the local cache operations. Records are opaque JSON
// payloads keyed by kind and entity id.
type Store interface {
	Init(ctx context.Context) error
	Get(ctx context.Context, kind model.Kind, id string) ([]byte, error)
	GetAll(ctx context.Context, kind model.Kind) ([][]byte, error)
	Put(ctx context.Context, kind model.Kind, id string, payload []byte) error
	Delete(ctx context.Context, kind model.Kind, id string) error
	ReplaceAll(ctx context.Context, kind model.Kind, entries []Entry) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Init migrates the cache tables. Calling it again is harmless.
func (s *gormStore) Init(ctx context.Context) error {
	return db.Migrate(s.db.WithContext(ctx))
}

func (s *gormStore) Get(ctx context.Context, kind model.Kind, id string) ([]byte, error) {
	var rec model.CacheRecord
	err := s.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ?", string(kind), id).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s from cache: %w", kind, id, err)
	}
	return rec.Payload, nil
}

// GetAll returns the payloads of kind in stored order. Records put
// individually sort ahead of the last full replacement, newest first.
func (s *gormStore) GetAll(ctx context.Context, kind model.Kind) ([][]byte, error) {
	var recs []model.CacheRecord
	err := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("position ASC").Order("updated_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from cache: %w", kind, err)
	}
	payloads := make([][]byte, len(recs))
	for i, r := range recs {
		payloads[i] = r.Payload
	}
	return payloads, nil
}

func (s *gormStore) Put(ctx context.Context, kind model.Kind, id string, payload []byte) error {
	rec := model.CacheRecord{
		Kind:      string(kind),
		EntityID:  id,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to write %s/%s to cache: %w", kind, id, err)
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	err := s.db.WithContext(ctx).
		Where("kind = ? AND entity_id = ?", string(kind), id).
		Delete(&model.CacheRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s from cache: %w", kind, id, err)
	}
	return nil
}

// ReplaceAll swaps the whole collection of kind for entries in one
// transaction, so a reader never sees a half-written kind.
func (s *gormStore) ReplaceAll(ctx context.Context, kind model.Kind, entries []Entry) error {
	now := time.Now().UTC()
	recs := make([]model.CacheRecord, 0, len(entries))
	for i, e := range entries {
		recs = append(recs, model.CacheRecord{
			Kind:      string(kind),
			EntityID:  e.ID,
			Position:  i + 1,
			Payload:   e.Payload,
			UpdatedAt: now,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ?", string(kind)).Delete(&model.CacheRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear %s in cache: %w", kind, err)
		}
		if len(recs) == 0 {
			return nil
		}
		log.Debug().Str("kind", string(kind)).Int("records", len(recs)).Msg("replacing cached collection")
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "payload", "updated_at"}),
		}).CreateInBatches(recs, 200).Error; err != nil {
			return fmt.Errorf("failed to write %s to cache: %w", kind, err)
		}
		return nil
	})
}
