package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ummah-sync/config"
	"ummah-sync/internal/model"
)

func TestFromConfig(t *testing.T) {
	lat, lng := 21.4225, 39.8262
	loc := FromConfig(config.LocationConfig{DeviceLat: &lat, DeviceLng: &lng})

	pos, err := loc.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Coordinate{Lat: lat, Lng: lng}, pos)
}

func TestStatic_Unavailable(t *testing.T) {
	loc := FromConfig(config.LocationConfig{})

	_, err := loc.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
