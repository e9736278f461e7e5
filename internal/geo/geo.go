// Package geo provides the device position used for prayer schedules.
package geo

import (
	"context"
	"errors"

	"ummah-sync/config"
	"ummah-sync/internal/model"
)

// ErrUnavailable is returned when the device cannot report a position.
var ErrUnavailable = errors.New("position unavailable")

// Locator reports the current position of the device.
type Locator interface {
	CurrentPosition(ctx context.Context) (model.Coordinate, error)
}

// Static is a Locator with a fixed, optional position.
type Static struct {
	pos *model.Coordinate
}

// NewStatic returns a Locator that always reports pos. A nil pos makes
// every lookup fail with ErrUnavailable.
func NewStatic(pos *model.Coordinate) *Static {
	return &Static{pos: pos}
}

// FromConfig builds a Static locator from the configured device position.
func FromConfig(cfg config.LocationConfig) *Static {
	if cfg.DeviceLat == nil || cfg.DeviceLng == nil {
		return NewStatic(nil)
	}
	return NewStatic(&model.Coordinate{Lat: *cfg.DeviceLat, Lng: *cfg.DeviceLng})
}

func (s *Static) CurrentPosition(ctx context.Context) (model.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return model.Coordinate{}, err
	}
	if s.pos == nil {
		return model.Coordinate{}, ErrUnavailable
	}
	return *s.pos, nil
}
