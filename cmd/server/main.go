package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"github.com/Skufu/liverscan/internal/analysis"
	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
	"github.com/Skufu/liverscan/internal/model"
	"github.com/Skufu/liverscan/internal/store"
	"github.com/Skufu/liverscan/internal/telemetry"
)

const (
	serviceName = "liverscan"
	version     = "0.3.0"
)

type Config struct {
	Port             string
	DatabaseURL      string
	EnableDB         bool
	ModelBundle      string
	FeatureUI        string
	FeatureStrict    bool
	RiskPolicy       interpret.Policy
	InferenceTimeout time.Duration
	ORTLibrary       string
	RateLimitRPS     float64
	RateLimitBurst   int
	LogLevel         string
	TraceExporter    string
	OTLPEndpoint     string
}

func main() {
	gin.SetMode(getEnv("GIN_MODE", "release"))

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		TraceExporter:  cfg.TraceExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		OTLPInsecure:   true,
	})
	if err != nil {
		log.Fatalf("tracing setup failed: %v", err)
	}
	defer shutdownTracing(context.Background())

	registry := features.DefaultRegistry()
	if cfg.FeatureUI != "" {
		registry, err = features.LoadRegistry(cfg.FeatureUI)
		if err != nil {
			log.Fatalf("feature metadata: %v", err)
		}
	}

	provider := model.FromBundle(cfg.ModelBundle, cfg.ORTLibrary, cfg.InferenceTimeout)
	defer provider.Close()

	opts := []analysis.Option{analysis.WithLogger(logger)}

	var db store.HealthChecker
	if cfg.EnableDB {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer pool.Close()
		audit := store.NewAuditStore(pool)
		if err := audit.EnsureSchema(ctx); err != nil {
			log.Fatalf("database schema: %v", err)
		}
		db = pool
		opts = append(opts, analysis.WithRecorder(audit))
	}

	// Load the artifact and validate the form metadata against it before
	// accepting traffic.
	svc, err := analysis.FromProvider(provider, registry, cfg.FeatureStrict, cfg.RiskPolicy, opts...)
	if err != nil {
		log.Fatalf("model setup failed: %v", err)
	}
	logger.Info("model loaded",
		"bundle", cfg.ModelBundle,
		"features", len(svc.Schema().Names()),
		"policy", cfg.RiskPolicy.Name,
	)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	staticRoot := detectStaticRoot()
	router := setupRouter(svc, db, staticRoot, limiter)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	waitForShutdown(server)
}

func loadConfig() (*Config, error) {
	_ = godotenv.Load()

	policy, err := interpret.ParsePolicy(os.Getenv("RISK_POLICY"))
	if err != nil {
		return nil, err
	}
	timeout, err := time.ParseDuration(getEnv("INFERENCE_TIMEOUT", "3s"))
	if err != nil {
		return nil, fmt.Errorf("INFERENCE_TIMEOUT: %w", err)
	}
	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_BURST: %w", err)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		EnableDB:         strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		ModelBundle:      getEnv("MODEL_BUNDLE", "models/liver_pipeline.yaml"),
		FeatureUI:        os.Getenv("FEATURE_UI"),
		FeatureStrict:    !strings.EqualFold(getEnv("FEATURE_STRICT", "true"), "false"),
		RiskPolicy:       policy,
		InferenceTimeout: timeout,
		ORTLibrary:       os.Getenv("ORT_SHARED_LIBRARY"),
		RateLimitRPS:     rps,
		RateLimitBurst:   burst,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TraceExporter:    getEnv("TRACE_EXPORTER", "none"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	return cfg, nil
}

func waitForShutdown(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func detectStaticRoot() string {
	startDir, err := os.Getwd()
	if err != nil {
		return "."
	}

	candidates := []string{
		startDir,
		filepath.Dir(startDir),
		filepath.Dir(filepath.Dir(startDir)),
	}

	for _, dir := range candidates {
		if fileExists(filepath.Join(dir, "web", "index.html")) {
			return filepath.Join(dir, "web")
		}
	}

	return startDir
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
