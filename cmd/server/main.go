package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/hanakoi/backend/internal/api"
	"github.com/hanakoi/backend/internal/auth"
	"github.com/hanakoi/backend/internal/bot"
	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/config"
	"github.com/hanakoi/backend/internal/database"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/matchmaking"
	"github.com/hanakoi/backend/internal/migrations"
	"github.com/hanakoi/backend/internal/redis"
	"github.com/hanakoi/backend/internal/session"
	"github.com/hanakoi/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Database and Redis are optional in development: every store degrades
	// to in-memory when they are absent.
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		if cfg.Environment == "production" {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		log.Printf("[MAIN] Database unavailable, running in-memory: %v", err)
		db = nil
	}
	if db != nil {
		defer db.Close()
		if os.Getenv("MIGRATE_ON_START") == "true" {
			log.Println("Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
	}

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		if cfg.Environment == "production" {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Printf("[MAIN] Redis unavailable, running without mirror: %v", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Event plumbing
	internalBus := bus.NewInternalBus()
	playerBus := bus.NewPlayerBus()

	// Stores
	players := identity.NewPlayerStore(db)
	sessions := identity.NewSessionStore(db, rdb, time.Duration(cfg.SessionTTLDays)*24*time.Hour)
	games := session.NewGameStore(rdb)
	repo := session.NewRepository(db)

	// Matchmaking
	pool := matchmaking.NewPool()
	registry := matchmaking.NewRegistry(
		time.Duration(cfg.LowAvailabilitySeconds)*time.Second,
		time.Duration(cfg.BotFallbackSeconds)*time.Second,
	)
	defer registry.Stop()
	matchmaker := matchmaking.NewService(pool, registry, internalBus, playerBus, games)

	// Session runtime
	timers := session.NewTimerService()
	defer timers.Stop()
	limiter := session.NewRateLimiter(
		time.Duration(cfg.RateLimitWindowMillis)*time.Millisecond,
		cfg.RateLimitMaxCommands,
	)
	limiter.StartJanitor(context.Background())
	runtime := session.NewService(cfg, games, repo, internalBus, playerBus, timers, limiter, matchmaker, players, rdb)

	// AI opponent
	aiPlayer := bot.New(runtime, playerBus)
	aiPlayer.Start()
	defer aiPlayer.Stop()

	// Gateway
	handoff := auth.NewHandoff(cfg.HandoffSecret, auth.DefaultHandoffTTL)
	manager := ws.NewManager(playerBus, runtime)
	wsHandler := ws.NewHandler(manager, runtime, sessions, handoff)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, api.Deps{
		Cfg:      cfg,
		Players:  players,
		Sessions: sessions,
		Games:    games,
		Repo:     repo,
		Handoff:  handoff,
		WS:       wsHandler,
		Gateway:  manager,
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting HanaKoi server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
