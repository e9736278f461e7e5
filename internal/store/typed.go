package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"ummah-sync/internal/model"
)

type identified interface {
	EntityID() string
}

// Load decodes the cached record kind/id into a T.
func Load[T any](ctx context.Context, s Store, kind model.Kind, id string) (T, error) {
	var v T
	payload, err := s.Get(ctx, kind, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("failed to decode cached %s/%s: %w", kind, id, err)
	}
	return v, nil
}

// LoadAll decodes every cached record of kind. Undecodable records are
// skipped and logged.
func LoadAll[T any](ctx context.Context, s Store, kind model.Kind) ([]T, error) {
	payloads, err := s.GetAll(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(payloads))
	for _, p := range payloads {
		var v T
		if err := json.Unmarshal(p, &v); err != nil {
			log.Warn().Err(err).Str("kind", string(kind)).Msg("skipping undecodable cache record")
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Save encodes rec and puts it under its entity id.
func Save[T identified](ctx context.Context, s Store, kind model.Kind, rec T) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", kind, rec.EntityID(), err)
	}
	return s.Put(ctx, kind, rec.EntityID(), payload)
}

// SaveAll replaces the cached collection of kind with recs.
func SaveAll[T identified](ctx context.Context, s Store, kind model.Kind, recs []T) error {
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode %s/%s: %w", kind, rec.EntityID(), err)
		}
		entries = append(entries, Entry{ID: rec.EntityID(), Payload: payload})
	}
	return s.ReplaceAll(ctx, kind, entries)
}
