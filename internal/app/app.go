// Package app wires configuration into a running engine and its surfaces.
package app

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/vthunder/acuity/internal/api"
	"github.com/vthunder/acuity/internal/capture"
	"github.com/vthunder/acuity/internal/classify"
	"github.com/vthunder/acuity/internal/config"
	"github.com/vthunder/acuity/internal/engine"
	"github.com/vthunder/acuity/internal/ledger"
	"github.com/vthunder/acuity/internal/logging"
	"github.com/vthunder/acuity/internal/notify"
	"github.com/vthunder/acuity/internal/persist"
	"github.com/vthunder/acuity/internal/store"
)

const drainTimeout = 5 * time.Second

// App is everything Build created
type App struct {
	Config   *config.Config
	Engine   *engine.Engine
	Ollama   *classify.OllamaClient
	Store    *store.DB             // nil when disabled
	Remote   *persist.RemoteClient // nil without a remote URL
	Writer   *persist.Writer       // nil without any backend
	Notifier *notify.DiscordNotifier
}

// Build creates the engine and its collaborators from cfg
func Build(cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	a := &App{Config: cfg}

	var hinter capture.Hinter
	if cfg.Capture.ProcessHints > 0 {
		hinter = capture.NewProcessProbe(cfg.Capture.ProcessHints)
	}
	capturer := capture.NewCommandCapturer(cfg.Capture.Command, cfg.Capture.Timeout.D(), hinter)

	a.Ollama = classify.NewOllamaClient(cfg.Classifier.URL, cfg.Classifier.Model)
	pipeline := classify.NewPipeline(a.Ollama, cfg.Classifier.Timeout.D())
	logging.Info("app", "Classifier %s (model=%s, timeout=%v)", cfg.Classifier.URL, a.Ollama.Model(), pipeline.Timeout())

	var backends persist.Multi
	if cfg.Store.Enabled {
		db, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.Store = db
		backends = append(backends, db)
	}
	if cfg.Remote.URL != "" {
		a.Remote = persist.NewRemoteClient(cfg.Remote.URL, cfg.Remote.Token)
		backends = append(backends, a.Remote)
		logging.Info("app", "Remote backend: %s", cfg.Remote.URL)
	}

	var (
		taskSink ledger.Sink
		obsSink  engine.ObservationSink
	)
	if len(backends) > 0 {
		a.Writer = persist.NewWriter(backends, cfg.Remote.QueueSize, cfg.Remote.WriteTimeout.D())
		taskSink, obsSink = a.Writer, a.Writer
	}

	l := ledger.New(nil, ledger.NewCache(cfg.StatePath), taskSink)
	if err := l.Load(); err != nil {
		logging.Warn("app", "Failed to load completed tasks: %v", err)
	}

	eng, err := engine.New(engine.Deps{
		Capture:  capturer,
		Analyzer: pipeline,
		Ledger:   l,
		Sink:     obsSink,
	}, engine.Options{
		FocusPeriod:   cfg.Schedule.FocusPeriod.D(),
		ObservePeriod: cfg.Schedule.ObservePeriod.D(),
		BatchSize:     cfg.Schedule.BatchSize,
		Thresholds:    cfg.Escalation,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng

	if cfg.Discord.Token != "" {
		session, err := notify.NewSession(cfg.Discord.Token)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Notifier = notify.NewDiscordNotifier(session, cfg.Discord.ChannelID)
		a.Notifier.Start(eng)
	}

	return a, nil
}

// Router returns the HTTP surface for the engine and the history routes.
// History comes from the local store, or from the remote backend when the
// store is disabled.
func (a *App) Router() http.Handler {
	var st api.Store
	switch {
	case a.Store != nil:
		st = a.Store
	case a.Remote != nil:
		st = a.Remote
	}
	return api.NewRouter(a.Engine, st, a.Config.HTTP.Token)
}

// HTTPServer serves Router on addr. Shutting it down closes the engine's
// event streams so open subscribers do not hold the server.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: a.Router()}
	srv.RegisterOnShutdown(a.Engine.Close)
	return srv
}

// Close stops everything in dependency order
func (a *App) Close() {
	if a.Notifier != nil {
		a.Notifier.Stop()
	}
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.Writer != nil {
		a.Writer.Close(drainTimeout)
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// BackendRouter opens only the store and serves the /api routes
func BackendRouter(cfg *config.Config) (http.Handler, *store.DB, error) {
	if err := os.MkdirAll(cfg.StatePath, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	db, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}
	return api.NewRouter(nil, db, cfg.HTTP.Token), db, nil
}
