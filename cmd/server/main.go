package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/api"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/config"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(".env"); err != nil {
		slog.Info("No .env file found or error loading it, using default values", "err", err)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	stack, err := cfg.BuildStack(logger, prometheus.DefaultRegisterer)
	if err != nil {
		slog.Error("Failed to build molecule stack", "err", err)
		os.Exit(1)
	}

	hub := ws.NewHub(ws.WithLogger(logger))
	stack.Emitter.Subscribe(hub)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Handle("/metrics", promhttp.Handler())
	server.R.Handle("/ws", hub)

	moleculeHandler := api.NewMoleculeHandler(stack.Store, stack.Resolver,
		api.WithDefaultFolder(cfg.DefaultFolder),
		api.WithLogger(logger),
	)
	chain := api.DefaultChain(logger, nil)

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.RealIP)
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Group(func(r chi.Router) {
			if cfg.APIKeySHA256 != "" {
				apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
					APIKeys: map[string]string{
						"key1": cfg.APIKeySHA256,
					},
				})
				if err != nil {
					slog.Error("Failed initialize API Key middleware", "err", err)
					os.Exit(1)
				}
				r.Use(apiKeyMiddleware)
			}
			r.Mount("/molecules", chain.Wrap(moleculeHandler.Routes()))
		})
	})

	slog.Info("Starting molecule server",
		"environment", cfg.Environment,
		"fallback", cfg.Fallback,
		"input_root", cfg.InputRoot,
		"mirror_writes", cfg.MirrorWrites,
	)
	server.Run()

	hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stack.Emitter.Close(ctx); err != nil {
		slog.Warn("Pending notifications were dropped on shutdown", "err", err)
	}
}
