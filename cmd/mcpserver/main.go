package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tendant/simple-molecule/internal/mcp"
	"github.com/tendant/simple-molecule/pkg/simplemolecule/config"
)

type Config struct {
	Port    uint16 `env:"PORT" env-default:"8000"`
	BaseUrl string `env:"BASE_URL" env-default:"http://localhost:8000"`
}

func main() {
	var mode = flag.String("mode", "stdio", "Server mode: 'stdio', 'sse', or 'http'")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		slog.Info("No .env file found or error loading it, using default values", "err", err)
	}

	// stdout carries the stdio protocol
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	serverCfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	stack, err := serverCfg.BuildStack(logger, nil)
	if err != nil {
		slog.Error("Failed to build molecule stack", "err", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"Molecule Server Mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	handler := mcp.NewMoleculeHandler(stack.Store, stack.Resolver)
	handler.RegisterTools(s)

	switch *mode {
	case "sse":
		sseServer := server.NewSSEServer(s, server.WithBaseURL(cfg.BaseUrl))
		slog.Info("Starting SSE server", "base url", cfg.BaseUrl)
		if err := sseServer.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			slog.Error("Failed to start SSE server", "err", err)
			os.Exit(-1)
		}
	case "http":
		httpServer := server.NewStreamableHTTPServer(s)
		slog.Info("HTTP server listening", "port", cfg.Port)
		if err := httpServer.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(-1)
		}
	default:
		slog.Info("Starting in stdio mode")
		if err := server.ServeStdio(s); err != nil {
			slog.Error("Failed to start stdio server", "err", err)
			os.Exit(-1)
		}
	}
}
