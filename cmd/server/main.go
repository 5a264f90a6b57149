package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clipforge-backend/internal/config"
	"clipforge-backend/internal/events"
	"clipforge-backend/internal/handlers"
	"clipforge-backend/internal/pipeline"
	"clipforge-backend/internal/router"
	"clipforge-backend/internal/services"
	"clipforge-backend/internal/store"
	"clipforge-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting ClipForge Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Prepare Working Directories ────
	for _, dir := range []string{cfg.UploadsDir, cfg.ClipsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("✗ Failed to create directory %s: %v", dir, err)
		}
	}
	log.Println("✓ Working directories ready")

	// ──── Step 3: Initialize Store and Event Bus ────
	projectStore := store.New()
	bus := events.NewBus(projectStore)
	log.Println("✓ In-memory store and event bus initialized")

	// ──── Step 4: Initialize Services ────
	mediaService := services.NewMediaService(cfg.FfmpegPath, cfg.FfprobePath, cfg.YtdlpPath)
	youtubeService := services.NewYouTubeService(cfg.YtdlpPath)
	analyzer := services.NewAnalyzer(cfg.GeminiAPIKey, mediaService)
	defer analyzer.Close()
	if cfg.GeminiAPIKey == "" {
		log.Println("⚠ No Gemini API key configured — analysis will use mock mode")
	} else {
		log.Println("✓ Gemini analyzer initialized")
	}

	// ──── Step 5: Initialize Pipelines ────
	ingest := pipeline.NewIngest(projectStore, bus, mediaService, analyzer, cfg.UploadsDir, cfg.MaxVideoDurationMinutes)
	export := pipeline.NewExport(projectStore, bus, mediaService, cfg.ClipsDir)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(projectStore, bus)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	videoHandler := handlers.NewVideoHandler(
		projectStore,
		youtubeService,
		ingest,
		export,
		wsHub,
		cfg.MaxVideoDurationMinutes,
		cfg.MaxClipSeconds,
	)
	healthHandler := handlers.NewHealthHandler(cfg.GeminiAPIKey != "", cfg.FfmpegPath, cfg.YtdlpPath)
	r := router.New(videoHandler, healthHandler, cfg.FrontendURL)

	// No WriteTimeout: progress streams stay open for the lifetime of a
	// pipeline run.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ ClipForge Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/videos/progress/{id}", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
