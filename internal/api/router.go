package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"ummah-sync/config"
	"ummah-sync/internal/mw"
)

// NewRouter creates and configures a new Gin router. zone is the wall-clock
// zone of the schedules it serves.
func NewRouter(cfg config.ServerConfig, zone *time.Location, state State, db *gorm.DB, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins(cfg.AllowOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := NewHandler(state, zone, db, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.Burst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/state", handler.GetState)
		api.GET("/schedule", handler.GetSchedule)
		api.GET("/entities/:kind", caching, handler.GetEntities)

		api.GET("/notifications", handler.GetNotifications)
		api.POST("/notifications/read", handler.MarkNotificationsRead)
		api.DELETE("/notifications/:id", handler.DismissNotification)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

func allowOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
