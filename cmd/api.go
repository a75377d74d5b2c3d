package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"takeoffs/internal/auth"
	"takeoffs/internal/cache"
	"takeoffs/internal/database/postgresql/takeoffsdb"
	"takeoffs/internal/events"
	"takeoffs/internal/handlers/takeoffs"
	"takeoffs/internal/idempotency"
	"takeoffs/internal/media"
	"takeoffs/internal/preview"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

type application struct {
	config        config
	conn          *pgxpool.Pool
	cache         *cache.RedisClient
	authenticator *auth.Authenticator
	uploader      media.Uploader
	previews      preview.Generator
	eventBus      events.Bus
	logger        *slog.Logger
}

type config struct {
	events   *events.EventConfig
	frontend string
	addr     string
	// bufferUploads is true in managed environments with a read-only
	// filesystem: files are streamed from memory and previews are skipped.
	bufferUploads bool
	spoolDir      string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.config.frontend},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	idempotencyStore := idempotency.NewStore(app.cache)

	repo := takeoffsdb.New(app.conn)
	eventHandler := events.NewEventHandler(app.eventBus, app.config.events, app.logger)

	takeoffsService := takeoffs.NewTakeoffsService(repo, app.conn, app.logger, app.uploader, app.previews, eventHandler)
	takeoffsHandler := takeoffs.NewTakeoffsHandler(takeoffsService)

	r.Group(func(r chi.Router) {
		// Public routes
		r.Use(middleware.Recoverer)

		r.Get("/takeoffs", takeoffsHandler.ListTakeoffs)
		r.Get("/takeoffs/{id}", takeoffsHandler.GetTakeoffByID)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(idempotency.Idempotency(idempotencyStore))

		// Authenticated routes
		r.Use(app.authenticator.Middleware)

		r.Post("/takeoffs", takeoffsHandler.CreateTakeoff)
		r.Put("/takeoffs/{id}", takeoffsHandler.UpdateTakeoff)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(app.authenticator.RequireAdmin)
			r.Delete("/takeoffs/{id}", takeoffsHandler.DeleteTakeoff)
		})
	})

	return r
}

func (app *application) run(h http.Handler) error {
	svr := &http.Server{
		Addr:         app.config.addr,
		Handler:      h,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute * 1,
	}

	slog.Info("Starting server on " + app.config.addr)
	go func() {
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Listen: %s\n", err)
		}
	}()

	// Wait for interrupt (Ctrl+C or orchestrator stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := svr.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
		return err
	}

	// Drain lets in-flight messages finish before the connection closes
	if err := app.eventBus.Drain(); err != nil {
		log.Fatal("NATS drain failed:", err)
		return err
	}

	app.conn.Close()

	if err := app.cache.Close(); err != nil {
		log.Fatal("Redis close failed:", err)
		return err
	}

	log.Println("Server exited properly")
	return nil
}
