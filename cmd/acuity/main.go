// acuity watches the screen while you work and nudges you when you drift
// off task. Commands and events are served over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vthunder/acuity/internal/app"
	"github.com/vthunder/acuity/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (default: acuity.yaml if present)")
	task := flag.String("task", "", "Task to focus on at startup")
	start := flag.Bool("start", false, "Start tracking immediately")
	flag.Parse()

	log.Println("acuity - focus monitor")

	// Load .env file (optional - won't error if missing)
	if config.LoadEnv() {
		log.Println("[config] Loaded .env file")
	} else {
		log.Println("[config] No .env file found, using environment variables")
	}

	path := *configPath
	if path == "" {
		if _, err := os.Stat("acuity.yaml"); err == nil {
			path = "acuity.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if *task != "" {
		a.Engine.SetTask(*task)
	}
	if *start {
		a.Engine.Start()
	}

	srv := a.HTTPServer(cfg.HTTP.Addr)
	go func() {
		log.Printf("[main] Listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] HTTP shutdown: %v", err)
	}
	a.Close()
	log.Println("[main] Goodbye")
}
