package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/manpreetbhatti/focusflow/backend/internal/api"
	"github.com/manpreetbhatti/focusflow/backend/internal/config"
	"github.com/manpreetbhatti/focusflow/backend/internal/db"
	"github.com/manpreetbhatti/focusflow/backend/internal/logging"
	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
	"github.com/manpreetbhatti/focusflow/backend/internal/presence"
	"github.com/manpreetbhatti/focusflow/backend/internal/redisstore"
	"github.com/manpreetbhatti/focusflow/backend/internal/workspace"
	"github.com/manpreetbhatti/focusflow/backend/internal/ws"
)

// A durable store the server can run on
type backend interface {
	persistence.DocumentStore
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("store") {
		cfg.Store.Backend = opts.store
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.StoreConfig) (backend, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return redisstore.New(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisPrefix)
	case config.BackendSQLite:
		return db.New(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)
	log := logging.NewLogger("server")

	store, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Persistence.LoadTimeout)
	err = store.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("store is unreachable: %w", err)
	}

	workspaces := workspace.NewStore()
	synchronizer := persistence.New(store, workspaces, persistence.Config{
		FlushInterval: cfg.Persistence.FlushInterval,
		FlushTimeout:  cfg.Persistence.FlushTimeout,
		LoadTimeout:   cfg.Persistence.LoadTimeout,
	})
	synchronizer.Start()

	registry := presence.NewRegistry()

	hubConfig := ws.DefaultConfig()
	hubConfig.SendBuffer = cfg.Limits.SendBuffer
	hubConfig.MaxMessageSize = cfg.Limits.MaxMessageSize
	hubConfig.MessagesPerSecond = cfg.Limits.MessagesPerSecond
	hubConfig.MessageBurst = cfg.Limits.MessageBurst
	hub := ws.NewHub(registry, synchronizer, hubConfig)

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	})
	api.New(hub, registry, workspaces, synchronizer, store).Register(router)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: corsMiddleware(router),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":           cfg.Server.Addr,
			"store":          cfg.Store.Backend,
			"flush_interval": cfg.Persistence.FlushInterval,
		}).Info("FocusFlow sync server starting")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			hub.Close()
			synchronizer.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown did not complete")
	}

	hub.Close()
	synchronizer.Stop()
	log.Info("Server stopped")
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
