package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ummah-sync/internal/model"
	"ummah-sync/internal/prayer"
)

// GetState returns the whole snapshot.
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.Snapshot())
}

// GetEntities returns one entity collection.
func (h *Handler) GetEntities(c *gin.Context) {
	kind, ok := model.ParseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown entity kind"})
		return
	}

	snap := h.state.Snapshot()
	var items any
	switch kind {
	case model.KindUsers:
		items = nonNil(snap.Users)
	case model.KindMosques:
		items = nonNil(snap.Mosques)
	case model.KindLessons:
		items = nonNil(snap.Lessons)
	case model.KindPosts:
		items = nonNil(snap.Posts)
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "items": items, "cache_ready": snap.CacheReady})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// GetSchedule returns today's schedule and the next prayer. With date, lat
// and lng query parameters it computes the schedule for that day and place
// instead.
func (h *Handler) GetSchedule(c *gin.Context) {
	rawDate, rawLat, rawLng := c.Query("date"), c.Query("lat"), c.Query("lng")
	if rawDate == "" && rawLat == "" && rawLng == "" {
		c.JSON(http.StatusOK, gin.H{"schedule": h.state.Snapshot().Schedule, "next": h.state.Next()})
		return
	}

	date := h.now().In(h.zone)
	if rawDate != "" {
		d, err := time.ParseInLocation(time.DateOnly, rawDate, h.zone)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = d
	}

	coord := prayer.DefaultCoordinate
	if rawLat != "" || rawLng != "" {
		lat, errLat := strconv.ParseFloat(rawLat, 64)
		lng, errLng := strconv.ParseFloat(rawLng, 64)
		if errLat != nil || errLng != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must both be numbers"})
			return
		}
		coord = model.Coordinate{Lat: lat, Lng: lng}
	}

	c.JSON(http.StatusOK, gin.H{"schedule": prayer.ForLocation(date, &coord)})
}
