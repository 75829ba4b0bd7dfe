package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"confidential_rps/internal/config"
	"confidential_rps/internal/db"
	"confidential_rps/internal/fhe"
	httpServer "confidential_rps/internal/http"
	"confidential_rps/internal/http/handlers"
	"confidential_rps/internal/http/middleware"
	"confidential_rps/internal/logger"
	"confidential_rps/internal/repository"
	"confidential_rps/internal/service"
	"confidential_rps/internal/ws"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	dbPool := db.Connect(cfg.DatabaseURL)
	if dbPool != nil {
		defer dbPool.Close()
	}

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer middleware.CloseRedis()

	rt, err := fhe.NewRuntime()
	if err != nil {
		logger.Fatal("failed to init coprocessor", "error", err)
	}
	oracle, err := fhe.NewLocalOracle(rt, fhe.OracleConfig{
		Workers: cfg.OracleWorkers,
		Delay:   cfg.OracleDelay,
	})
	if err != nil {
		logger.Fatal("failed to init oracle", "error", err)
	}
	oracle.Start()


	var games *service.GameService
	hub := ws.NewHub(func(addr string) (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return games.Snapshot(ctx, common.HexToAddress(addr))
	})
	hub.StartCleanup()

	audit := service.NewAuditService(dbPool)
	gsCfg := service.GameServiceConfig{
		Runtime:      rt,
		Oracle:       oracle,
		RandomPolicy: cfg.RandomPolicy,
		Publisher:    hub,
		Audit:        audit,
	}
	if dbPool != nil {
		gsCfg.Store = repository.NewGameRepository(dbPool)
	}
	games = service.NewGameService(gsCfg)

	health := handlers.NewHealthHandler(dbPool, version)
	if cfg.RedisAddr != "" {
		health.AddCheck("redis", handlers.PingFunc(middleware.PingRedis))
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for the browser client
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler: handlers.NewHandler(games, service.NewAuthService(), audit),
		Health:  health,
		Hub:     hub,
		Config:  cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version, "oracle", oracle.Address().Hex(), "random_policy", cfg.RandomPolicy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	oracle.Stop()
	hub.Close()

	logger.Info("server exited")
}
