// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package concierge provides the core shopping assistant service for ClerkDesk.
//
// This package contains the main Service type that coordinates all
// components of the assistant: HTTP routing, the dialogue engine, product
// retrieval, session storage, and observability infrastructure.
//
// # Usage
//
//	cfg := concierge.Config{Port: 12310, WeaviateURL: "http://localhost:8080"}
//	svc, err := concierge.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package concierge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/clerkdesk/clerkdesk/services/concierge/copywriter"
	"github.com/clerkdesk/clerkdesk/services/concierge/datatypes"
	"github.com/clerkdesk/clerkdesk/services/concierge/engine"
	"github.com/clerkdesk/clerkdesk/services/concierge/enrichment"
	"github.com/clerkdesk/clerkdesk/services/concierge/observability"
	"github.com/clerkdesk/clerkdesk/services/concierge/retrieval"
	"github.com/clerkdesk/clerkdesk/services/concierge/routes"
	"github.com/clerkdesk/clerkdesk/services/concierge/sessionstore"
	storagebadger "github.com/clerkdesk/clerkdesk/services/concierge/storage/badger"
	"github.com/clerkdesk/clerkdesk/services/concierge/ttl"
	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the concierge service.
//
// # Description
//
// Service abstracts the assistant lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or encounters a
	//     fatal error
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered
	//
	// # Limitations
	//
	//   - Should not be used to modify routes after construction
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds concierge service configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or programmatically
// for testing. All fields are optional with defaults applied by New(),
// except WeaviateURL which must point at a reachable instance.
//
// # Examples
//
//	// Minimal config
//	cfg := Config{WeaviateURL: "http://localhost:8080"}
//
//	// Full configuration
//	cfg := Config{
//	    Port:                12310,
//	    WeaviateURL:         "http://localhost:8080",
//	    EmbeddingServiceURL: "http://localhost:8000",
//	    OTelEndpoint:        "localhost:4317",
//	    DataDir:             "/var/lib/clerkdesk",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// WeaviateURL is the Weaviate vector database URL. The product
	// catalog lives there, so the service refuses to start without it.
	// Falls back to the WEAVIATE_URL environment variable.
	WeaviateURL string

	// EmbeddingServiceURL is the base URL of the embeddings sidecar.
	// Falls back to the EMBEDDING_SERVICE_URL environment variable,
	// then to "http://clerkdesk-embeddings:8000". When the sidecar is
	// unreachable at runtime, retrieval degrades to keyword search.
	EmbeddingServiceURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "clerkdesk-otel-collector:4317"
	OTelEndpoint string

	// DataDir is the directory for the BadgerDB session and fact-sheet
	// store. Default: "./data/clerkdesk"
	DataDir string

	// InMemoryStore opens BadgerDB in memory instead of DataDir.
	// Sessions do not survive a restart. Intended for tests.
	InMemoryStore bool

	// EngineProfile is an optional path to a YAML tuning profile for
	// the dialogue engine. When empty, built-in defaults are used.
	EngineProfile string

	// EnableParaphrase turns on LLM paraphrasing of reply templates.
	// Requires OPENAI_API_KEY; when the key is missing the service
	// logs a warning and runs template-only.
	EnableParaphrase bool

	// SessionCleanupInterval is how often idle sessions are purged.
	// Default: 1 hour
	SessionCleanupInterval time.Duration

	// SessionIdleAfter is how long a session may go untouched before
	// the cleanup pass removes it. Default: 24 hours
	SessionIdleAfter time.Duration

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The multi-turn dialogue engine
//   - Product retrieval over Weaviate
//   - Session persistence in BadgerDB
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	weaviateClient *weaviate.Client
	db             *storagebadger.DB
	sessions       *sessionstore.Store
	embedder       *retrieval.EmbeddingClient
	eng            *engine.Engine
	scheduler      *ttl.Scheduler
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new concierge Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and Prometheus metrics
//  3. Creates the Weaviate client and ensures the catalog schema
//  4. Opens the BadgerDB session store
//  5. Builds the dialogue engine and its collaborators
//  6. Starts the idle-session cleanup scheduler
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run concierge service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Weaviate is running and reachable at the configured URL
//   - The OTel collector and embeddings sidecar may come up later;
//     their absence is tolerated at startup
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	observability.InitMetrics()

	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize Weaviate: %w", err)
	}

	if err := s.initStorage(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize session storage: %w", err)
	}

	if err := s.initEngine(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize dialogue engine: %w", err)
	}

	if err := s.initScheduler(); err != nil {
		slog.Warn("Session cleanup scheduler initialization failed",
			"error", err)
		// Not fatal - idle sessions simply accumulate until restart
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting concierge server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = os.Getenv("WEAVIATE_URL")
	}
	if cfg.EmbeddingServiceURL == "" {
		cfg.EmbeddingServiceURL = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if cfg.EmbeddingServiceURL == "" {
		cfg.EmbeddingServiceURL = "http://clerkdesk-embeddings:8000"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "clerkdesk-otel-collector:4317"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/clerkdesk"
	}
	if cfg.SessionCleanupInterval == 0 {
		cfg.SessionCleanupInterval = 1 * time.Hour
	}
	if cfg.SessionIdleAfter == 0 {
		cfg.SessionIdleAfter = 24 * time.Hour
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("concierge-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate creates the Weaviate client and ensures the catalog schema.
//
// Unlike tracing and embeddings, Weaviate is a hard dependency: the
// product catalog lives there and the engine cannot ground replies
// without it.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		return fmt.Errorf("WeaviateURL is not configured")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}

	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureWeaviateSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)

	return nil
}

// initStorage opens the BadgerDB database backing the session store and
// the fact-sheet cache.
func (s *service) initStorage() error {
	var storeCfg storagebadger.Config
	if s.config.InMemoryStore {
		storeCfg = storagebadger.InMemoryConfig()
	} else {
		storeCfg = storagebadger.DefaultConfig()
		storeCfg.Path = s.config.DataDir
	}
	storeCfg.Logger = slog.Default()

	db, err := storagebadger.OpenDB(storeCfg)
	if err != nil {
		return err
	}

	s.db = db
	s.sessions = sessionstore.New(db)
	slog.Info("Session store initialized",
		"in_memory", s.config.InMemoryStore,
		"path", s.config.DataDir)

	return nil
}

// initEngine builds the dialogue engine and its collaborators: the
// Weaviate-backed retriever, the embedding client, the template
// copywriter, and the fact-sheet enricher.
func (s *service) initEngine() error {
	engineCfg := engine.DefaultConfig()
	if s.config.EngineProfile != "" {
		loaded, err := engine.LoadProfile(s.config.EngineProfile)
		if err != nil {
			return fmt.Errorf("failed to load engine profile %q: %w",
				s.config.EngineProfile, err)
		}
		engineCfg = loaded
		slog.Info("Loaded engine tuning profile", "path", s.config.EngineProfile)
	}

	s.embedder = retrieval.NewEmbeddingClient(s.config.EmbeddingServiceURL)
	searcher := retrieval.NewSearcher(s.weaviateClient)

	writer := copywriter.NewWriter()
	if s.config.EnableParaphrase {
		paraphraser, err := copywriter.NewOpenAIParaphraser()
		if err != nil {
			slog.Warn("Paraphraser unavailable, replies use templates only",
				"error", err)
		} else {
			writer = writer.WithParaphraser(paraphraser)
			slog.Info("LLM paraphrasing enabled")
		}
	}

	enricher := enrichment.New(enrichment.NewChunkSource(s.weaviateClient), s.db)

	s.eng = engine.New(engineCfg, searcher, s.embedder, writer, enricher)
	return nil
}

// initScheduler starts the background idle-session cleanup scheduler.
func (s *service) initScheduler() error {
	schedulerCfg := ttl.SchedulerConfig{
		Interval:  s.config.SessionCleanupInterval,
		IdleAfter: s.config.SessionIdleAfter,
	}

	s.scheduler = ttl.NewScheduler(s.sessions, schedulerCfg)
	if err := s.scheduler.Start(context.Background()); err != nil {
		s.scheduler = nil
		return err
	}

	slog.Info("Session cleanup scheduler started",
		"interval", schedulerCfg.Interval.String(),
		"idle_after", schedulerCfg.IdleAfter.String())

	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("concierge-service"))

	routes.SetupRoutes(s.router, s.eng, s.sessions, s.weaviateClient, s.embedder)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure. Stops the
// cleanup scheduler, closes the database, and shuts down the tracer.
func (s *service) cleanup() {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			slog.Warn("Session cleanup scheduler stop error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Session store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
