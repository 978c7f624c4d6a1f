package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/mediaforge/internal/agent"
	"github.com/nidhogg/mediaforge/internal/api"
	"github.com/nidhogg/mediaforge/internal/bus"
	"github.com/nidhogg/mediaforge/internal/config"
	"github.com/nidhogg/mediaforge/internal/engine"
	"github.com/nidhogg/mediaforge/internal/intelligence"
	"github.com/nidhogg/mediaforge/internal/job"
	"github.com/nidhogg/mediaforge/internal/provider"
	"github.com/nidhogg/mediaforge/internal/store"
	"github.com/nidhogg/mediaforge/internal/template"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting MediaForge...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/mediaforge.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Initialize LLM providers
	providers := make(map[string]provider.Provider)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
		}
		switch pc.Type {
		case "openai":
			providers[pc.ID] = provider.NewOpenAIProvider(provCfg, logger)
		case "anthropic":
			providers[pc.ID] = provider.NewAnthropicProvider(provCfg, logger)
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	var primary provider.Provider
	if p, ok := providers[cfg.Intelligence.Provider]; ok {
		primary = p
	} else {
		for _, p := range providers {
			primary = p
			break
		}
	}

	// Initialize PostgreSQL store
	db, err := store.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	if err := db.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Initialize event bus
	var events engine.Events
	eventBus, busErr := bus.New(cfg.Database.Redis.URL, logger)
	if busErr != nil {
		logger.Warn("Redis unavailable, running without events", zap.Error(busErr))
	} else {
		events = eventBus
	}

	// Load templates
	templates := template.NewLoader(cfg.TemplatesDir, logger)
	if _, err := templates.LoadAll(); err != nil {
		logger.Warn("template load incomplete", zap.Error(err))
	}
	logger.Info("Templates loaded", zap.Strings("names", templates.Names()))

	// Register agents
	catalog := agent.NewCatalog(logger)
	gen := agent.GenerationConfig{Model: cfg.Intelligence.Model}
	catalog.Register(agent.NewResearchAgent(primary, gen, logger))
	catalog.Register(agent.NewWritingAgent(primary, gen, logger))
	catalog.Register(agent.NewDesignAgent(primary, gen, logger))
	catalog.Register(agent.NewMysticAgent(primary, gen, cfg.Freepik.APIKey, logger))
	catalog.Register(agent.NewAudioAgent(primary, gen, logger))
	catalog.Register(agent.NewVideoAgent(primary, gen, logger))
	for _, cat := range job.Categories() {
		p := agent.NewPlaceholder(cat, logger)
		catalog.Register(p)
		catalog.SetFallback(cat, p.InstanceKey())
	}

	selector := agent.NewSelector(catalog, logger,
		agent.WithPremium(job.CategoryImage, "freepik_mystic"))

	// Intelligence layer is optional; the engine falls back to heuristics.
	var intel engine.Intelligence
	if primary != nil {
		intel = intelligence.New(primary, cfg.Intelligence.Model, logger)
	}

	runner := engine.NewRunner(db, selector, events, logger)
	eng := engine.New(db, templates, catalog, runner, intel, events, logger)

	// Build HTTP handler
	handler := api.NewHandler(eng, db, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("MediaForge listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down MediaForge...")
	srv.Shutdown(context.Background())
	if eventBus != nil {
		eventBus.Close()
	}
	db.Close()
}
