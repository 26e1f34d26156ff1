package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/docvaulthq/docvault/internal/config"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/workers"
)

func main() {
	log.Println("Starting docvault workers...")

	// Load Config
	configPath := os.Getenv("DOCVAULT_CONFIG_PATH")

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Database connection
	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
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

	// Initialize services
	auditService := services.NewAuditService(pg)
	analysisService := services.NewAnalysisService(pg)
	if err := analysisService.CreateQueueIfNotExists(); err != nil {
		log.Printf("Warning: failed to create analysis queue: %v", err)
	}
	documentService := services.NewDocumentService(pg, auditService, analysisService)

	analysisWorker := workers.NewAnalysisWorker(analysisService, documentService)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Println("Starting document analysis worker...")
		analysisWorker.Start(ctx)
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Println("Workers started successfully. Press Ctrl+C to stop.")
	<-c

	log.Println("Shutting down workers...")
	cancel()
	wg.Wait()
}
