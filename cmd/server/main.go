package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chess-orchestrator/configs"
	"chess-orchestrator/internal/handlers"
	"chess-orchestrator/internal/middleware"
	"chess-orchestrator/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize configuration
	cfg := configs.Load()

	// Setup logging
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	// Create services
	eventHub := handlers.NewEventHub()
	chessService := services.NewChessService()
	engineService := services.NewEngineService(cfg, chessService, eventHub)
	analysisService := services.NewAnalysisService(cfg, chessService, eventHub, nil)
	defer engineService.Shutdown()

	// Setup Gin
	if cfg.App.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:3001"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting middleware
	router.Use(middleware.RateLimit(cfg.RateLimit))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
		})
	})

	// Initialize handlers
	engineHandler := handlers.NewEngineHandler(engineService, analysisService)
	healthHandler := handlers.NewHealthHandler()

	// API routes
	api := router.Group("/api")
	{
		engines := api.Group("/engines")
		{
			engines.POST("/best-moves", engineHandler.GetBestMoves)
			engines.POST("/stop", engineHandler.StopEngine)
			engines.POST("/kill", engineHandler.KillEngine)
			engines.POST("/kill-all", engineHandler.KillEngines)
			engines.GET("/logs", engineHandler.GetEngineLogs)
			engines.POST("/analyze-game", engineHandler.AnalyzeGame)
			engines.GET("/config", engineHandler.GetEngineConfig)
		}

		// Event stream for the shell
		api.GET("/events", eventHub.Serve)

		// Health and stats
		api.GET("/health", healthHandler.Health)
		api.GET("/stats", healthHandler.Stats)
	}

	// Create server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logrus.Infof("Starting server on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
