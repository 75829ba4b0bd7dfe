package http

import (
	"time"

	"confidential_rps/internal/config"
	"confidential_rps/internal/http/handlers"
	"confidential_rps/internal/http/middleware"
	"confidential_rps/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs from main.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Hub     *ws.Hub
	Config  *config.Config
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	apiRateLimit, apiRateWindow := 60, time.Minute
	allowedOrigin := ""
	if d.Config != nil {
		apiRateLimit = d.Config.APIRateLimit
		apiRateWindow = time.Duration(d.Config.APIRateWindow) * time.Second
		allowedOrigin = d.Config.AllowedOrigin
	}

	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))
	registerAPIRoutes(v1, d.Handler, apiRateLimit, apiRateWindow)

	// Game event stream
	r.GET("/ws", ws.HandleWS(d.Hub, allowedOrigin))
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, gameRateLimit int, gameRateWindow time.Duration) {
	// Wallet sign-in
	api.POST("/auth/challenge", h.Challenge)
	api.POST("/auth", h.Authenticate)

	api.GET("/trust", h.Trust)
	api.GET("/me/games", middleware.JWT(), h.MyGames)
	api.GET("/me/audit", middleware.JWT(), h.MyAudit)

	// Game actions are limited per principal, not per IP
	gameRL := middleware.GameRateLimit(gameRateLimit, gameRateWindow)

	api.POST("/games", middleware.JWT(), gameRL, h.Deploy)
	games := api.Group("/games/:address")
	{
		games.GET("", h.GetGame)
		games.GET("/trail", h.Trail)
		games.GET("/moves/:slot", h.GetMove)

		games.POST("/mode", middleware.JWT(), gameRL, h.SelectMode)
		games.POST("/join", middleware.JWT(), gameRL, h.Join)
		games.POST("/encrypt", middleware.JWT(), gameRL, h.Encrypt)
		games.POST("/play", middleware.JWT(), gameRL, h.Play)
		games.POST("/decrypt", middleware.JWT(), gameRL, h.RequestDecryption)
		games.POST("/end", middleware.JWT(), gameRL, h.EndGame)
		games.GET("/moves/:slot/ciphertext", middleware.JWT(), h.MoveCiphertext)
		games.POST("/moves/:slot/decrypt", middleware.JWT(), h.DecryptMove)
	}

	// Oracle callback; authenticity comes from the fulfillment signature
	api.POST("/oracle/fulfill", h.Fulfill)
}
