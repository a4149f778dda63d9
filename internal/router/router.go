package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt *handler.AttemptHandler
	WS      *handler.WSHandler
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	verifier service.IdentityVerifier,
	handlers *Handlers,
	cfg *config.Config,
	limiter *middleware.RateLimiter,
	health map[string]HealthCheck,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Browser hardening headers.
	router.Use(middleware.SecureHeaders(cfg.GinMode))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok"}
		healthy := true
		for name, check := range health {
			if err := check(ctx); err != nil {
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			status["status"] = "degraded"
			response.Success(c, http.StatusServiceUnavailable, status)
			return
		}
		response.Success(c, http.StatusOK, status)
	})

	// ─── 1. Candidate API (JWT + Rate Limited) ─────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireCandidate(verifier), middleware.NoStore())
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	{
		api.POST("/exams/:exam_id/session", handlers.Attempt.StartOrResume)

		api.GET("/attempts/:attempt_id", handlers.Attempt.GetState)
		api.PUT("/attempts/:attempt_id/answers/:question_id", handlers.Attempt.SubmitAnswer)
		api.POST("/attempts/:attempt_id/questions/:question_id/review", handlers.Attempt.ToggleReview)
		api.POST("/attempts/:attempt_id/questions/:question_id/visit", handlers.Attempt.VisitQuestion)
		api.POST("/attempts/:attempt_id/sections/:section_id/finish", handlers.Attempt.FinishSection)
		api.POST("/attempts/:attempt_id/finalize", handlers.Attempt.Finalize)
	}

	// ─── 2. WebSocket Group (token via query) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidate(verifier))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	return router
}
