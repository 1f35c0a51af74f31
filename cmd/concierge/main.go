// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command concierge starts the ClerkDesk shopping assistant HTTP server.
//
// This is the main entry point for the containerized concierge service.
// Configuration comes from flags, with environment variables as fallback.
//
// # Environment Variables
//
//   - CONCIERGE_PORT: HTTP server port (default: 12310)
//   - WEAVIATE_URL: Weaviate vector DB URL (required)
//   - EMBEDDING_SERVICE_URL: Embeddings sidecar URL
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: clerkdesk-otel-collector:4317)
//   - OPENAI_API_KEY: Enables reply paraphrasing when --paraphrase is set
//
// # Usage
//
//	# Build
//	go build -o concierge ./cmd/concierge
//
//	# Run
//	./concierge serve --weaviate-url http://localhost:8080
//
//	# Or via container
//	podman-compose up concierge
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/clerkdesk/clerkdesk/pkg/logging"
	"github.com/clerkdesk/clerkdesk/services/concierge"
	"github.com/spf13/cobra"
)

var (
	port             int
	weaviateURL      string
	embeddingURL     string
	otelEndpoint     string
	dataDir          string
	engineProfile    string
	enableParaphrase bool
	cleanupInterval  time.Duration
	idleAfter        time.Duration
	logDir           string
	logJSON          bool
	logDebug         bool

	rootCmd = &cobra.Command{
		Use:   "concierge",
		Short: "The ClerkDesk shopping assistant service",
		Long: `Concierge is the ClerkDesk dialogue service: it classifies shopper
messages, grounds replies in the store's product catalog, and manages
multi-turn sessions.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the concierge HTTP server",
		Run:   runServe,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", getEnvInt("CONCIERGE_PORT", 12310),
		"HTTP server port")
	serveCmd.Flags().StringVar(&weaviateURL, "weaviate-url", os.Getenv("WEAVIATE_URL"),
		"Weaviate vector database URL (required)")
	serveCmd.Flags().StringVar(&embeddingURL, "embedding-url", os.Getenv("EMBEDDING_SERVICE_URL"),
		"Embeddings sidecar base URL")
	serveCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint",
		getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "clerkdesk-otel-collector:4317"),
		"OpenTelemetry collector endpoint")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "./data/clerkdesk",
		"Directory for the session store")
	serveCmd.Flags().StringVar(&engineProfile, "profile", "",
		"Path to a YAML engine tuning profile")
	serveCmd.Flags().BoolVar(&enableParaphrase, "paraphrase", false,
		"Paraphrase reply templates with an LLM (requires OPENAI_API_KEY)")
	serveCmd.Flags().DurationVar(&cleanupInterval, "session-cleanup-interval", time.Hour,
		"How often idle sessions are purged")
	serveCmd.Flags().DurationVar(&idleAfter, "session-idle-after", 24*time.Hour,
		"Idle time before a session is purged")
	serveCmd.Flags().StringVar(&logDir, "log-dir", "",
		"Directory for JSON log files (disabled when empty)")
	serveCmd.Flags().BoolVar(&logJSON, "log-json", false,
		"Write stderr logs as JSON")
	serveCmd.Flags().BoolVar(&logDebug, "debug", false,
		"Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	level := logging.LevelInfo
	if logDebug {
		level = logging.LevelDebug
	}

	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "concierge",
		JSON:    logJSON,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	cfg := concierge.Config{
		Port:                   port,
		WeaviateURL:            weaviateURL,
		EmbeddingServiceURL:    embeddingURL,
		OTelEndpoint:           otelEndpoint,
		DataDir:                dataDir,
		EngineProfile:          engineProfile,
		EnableParaphrase:       enableParaphrase,
		SessionCleanupInterval: cleanupInterval,
		SessionIdleAfter:       idleAfter,
	}

	slog.Info("Starting concierge",
		"port", cfg.Port,
		"weaviate_url", cfg.WeaviateURL,
		"paraphrase", cfg.EnableParaphrase,
	)

	svc, err := concierge.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create concierge service: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("Concierge error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
