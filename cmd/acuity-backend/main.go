// acuity-backend stores observations and completed tasks posted by remote
// acuity engines and serves them back for history views.
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
	configPath := flag.String("config", "", "Path to YAML config")
	addr := flag.String("addr", "", "Listen address (overrides http.addr)")
	flag.Parse()

	if config.LoadEnv() {
		log.Println("[config] Loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if cfg.HTTP.Token == "" {
		log.Println("[main] Warning: ACUITY_API_TOKEN not set, /api is open")
	}

	handler, db, err := app.BackendRouter(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}
	go func() {
		log.Printf("[main] Backend listening on %s (store=%s)", cfg.HTTP.Addr, db.Path())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("[main] Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	db.Close()
}
