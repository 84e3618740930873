package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"laundry-fleet-backend/config"
	"laundry-fleet-backend/internal/directory"
	"laundry-fleet-backend/internal/machines"
	"laundry-fleet-backend/internal/mw"
	"laundry-fleet-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, svc *machines.Service, s store.Store, dir *directory.Directory, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(svc, s, dir, webpushOptions)

	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Limit(10)
	}
	rateLimiter := mw.RateLimiter(limit, 5, cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/agents", caching, handler.GetAgents)

		// Machine reads go through the orchestrator's own freshness
		// window; caching them here would double the staleness.
		api.GET("/agents/:agent_id/machines", handler.GetMachines)
		api.POST("/agents/:agent_id/machines/:local_id/commands", handler.SendCommand)
		api.GET("/agents/:agent_id/machines/:local_id/commands/:command_id", handler.GetCommandStatus)
		api.GET("/agents/:agent_id/machines/:local_id/cycles", handler.GetCycles)

		api.GET("/events", caching, handler.GetEvents)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
