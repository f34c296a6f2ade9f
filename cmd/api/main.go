package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pwalder/cospace/backend/internal/catalog"
	"github.com/pwalder/cospace/backend/internal/config"
	"github.com/pwalder/cospace/backend/internal/handler"
	"github.com/pwalder/cospace/backend/internal/handler/ws"
	"github.com/pwalder/cospace/backend/internal/metrics"
	"github.com/pwalder/cospace/backend/internal/service/session"
	"github.com/pwalder/cospace/backend/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Open the sqlite store and prepare its schema.
	if err := os.MkdirAll(filepath.Dir(cfg.Data.DatabasePath), 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}
	db, err := sql.Open("sqlite3", cfg.Data.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	// sqlite handles one writer at a time; keep the pool honest about it.
	db.SetMaxOpenConns(1)

	store := storage.New(db)
	if err := store.InitSchema(); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}

	// Load the object catalog and keep it fresh.
	objects, err := catalog.New(cfg.Data.ObjectPath)
	if err != nil {
		log.Fatalf("failed to load object catalog: %v", err)
	}
	if err := objects.Watch(ctx); err != nil {
		log.Printf("warning: object catalog watch unavailable: %v", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	manager := session.NewManager(store, objects, cfg.Realtime.TickInterval)
	manager.OnSessionCountChange = func(n int) { m.SessionsActive.Set(float64(n)) }
	manager.OnPositionBroadcast = func() { m.PositionBroadcasts.Inc() }
	if err := manager.LoadAll(ctx); err != nil {
		log.Fatalf("failed to load persisted sessions: %v", err)
	}

	gateway := ws.NewGateway(manager, objects, m, cfg.Realtime.HeartbeatInterval)
	gateway.StartHeartbeat()

	router := handler.NewRouter(gateway, objects, registry)

	startServer(ctx, cfg.Server, router)

	// Past this point the listener is down; flush live state before exit.
	gateway.StopHeartbeat()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.CloseAll(shutdownCtx)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("CoSpace backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
