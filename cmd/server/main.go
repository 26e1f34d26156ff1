package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/docvaulthq/docvault/internal/config"
	"github.com/docvaulthq/docvault/router"
)

func main() {
	log.Println("Starting docvault API server...")

	// Load Config
	configPath := os.Getenv("DOCVAULT_CONFIG_PATH")

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database connection
	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
	}
	if config.App.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	// Test database connection
	if err := pg.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Set timezone to UTC for consistent time handling
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	} else {
		log.Println("  Set database timezone to UTC")
	}

	log.Println("  Connected to database successfully")

	// Redis connection for the session lookup cache
	var redisClient *redis.Client
	if config.App.RedisURL != "" {
		opt, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
	} else {
		log.Println("  REDIS_URL not set, session lookups will not be cached")
	}

	r := router.NewGinRouter(pg, redisClient)

	port := config.App.Port
	if port == "" {
		port = "8080"
	}
	log.Printf("Listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
