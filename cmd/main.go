package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"takeoffs/internal/auth"
	"takeoffs/internal/cache"
	"takeoffs/internal/events"
	"takeoffs/internal/media"
	"takeoffs/internal/preview"
	"takeoffs/internal/storage"
	"takeoffs/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Use JSON traced logging
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	logger := slog.New(telemetry.NewTraceHandler(baseHandler))
	slog.SetDefault(logger)

	if collectorURL := os.Getenv("OTEL_COLLECTOR_URL"); collectorURL != "" {
		shutdown, err := telemetry.InitTracer("takeoffs-service", collectorURL)
		if err != nil {
			slog.Error("Failed to initialize tracer", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	bufferUploads := os.Getenv("BUFFER_UPLOADS") == "true"

	config := config{
		events:        events.NewEventConfig(),
		frontend:      os.Getenv("DOMAIN_NAME"),
		addr:          ":" + os.Getenv("API_PORT"),
		bufferUploads: bufferUploads,
		spoolDir:      os.Getenv("SPOOL_DIR"),
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	poolSize, _ := strconv.Atoi(os.Getenv("REDIS_POOL_SIZE"))
	minIdleConns, _ := strconv.Atoi(os.Getenv("REDIS_MIN_IDLE_CONNS"))

	cacheCfg := cache.Config{
		Addr:         os.Getenv("REDIS_ADDR"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	}
	slog.Info("Connecting to Redis cache", "addr", cacheCfg.Addr)
	rdb, err := cache.NewRedisClient(cacheCfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	dsn := os.Getenv("DB_DSN")
	slog.Info("Connecting to database", "addr", dsn)
	conn, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	slog.Info("Connecting to object storage", "endpoint", os.Getenv("S3_ENDPOINT"))
	provider, err := storage.NewMinioProvider(
		os.Getenv("S3_ENDPOINT"),
		os.Getenv("S3_ACCESS_KEY_ID"),
		os.Getenv("S3_SECRET_ACCESS_KEY"),
		os.Getenv("S3_BUCKET"),
		os.Getenv("PUBLIC_FILES_URL"),
		os.Getenv("S3_USE_SSL") == "true",
	)
	if err != nil {
		slog.Error("Failed to initialize MinIO provider", "error", err)
		os.Exit(1)
	}

	// The upload strategy is chosen once here. Buffer mode is for managed
	// environments with a read-only filesystem; it also disables previews
	// since rasterization needs the original on disk.
	var uploader media.Uploader
	var previews preview.Generator
	if bufferUploads {
		slog.Info("Upload mode: buffer (previews disabled)")
		uploader = media.NewBufferUploader(provider)
		previews = preview.NoopGenerator{}
	} else {
		slog.Info("Upload mode: disk", "spool_dir", config.spoolDir)
		uploader = media.NewDiskUploader(provider, config.spoolDir)
		previews = preview.NewFitzGenerator(logger)
	}

	slog.Info("Connecting to event bus", "endpoint", os.Getenv("NATS_ENDPOINT"))
	eventBus, err := events.NewNATSBus(os.Getenv("NATS_ENDPOINT"), logger)
	if err != nil {
		slog.Error("Failed to initialize event bus", "error", err)
		os.Exit(1)
	}

	app := &application{
		conn:          conn,
		config:        config,
		authenticator: auth.NewAuthenticator(jwtSecret),
		eventBus:      eventBus,
		uploader:      uploader,
		previews:      previews,
		logger:        logger,
		cache:         rdb,
	}

	if err := app.run(app.mount()); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
