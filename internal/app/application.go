// Package app assembles the monitor's components and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"classpulse/internal/api"
	"classpulse/internal/config"
	"classpulse/internal/eventstore"
	"classpulse/internal/metrics"
	"classpulse/internal/push"
	"classpulse/internal/websocket"
)

// Application wires the event store, snapshot cache, metrics engine,
// connection registry, push service, and HTTP surfaces together.
type Application struct {
	config *config.Config

	store      *eventstore.Store
	cache      *metrics.RedisCache
	tunables   *metrics.Tunables
	engine     *metrics.Engine
	registry   *websocket.Registry
	pusher     *push.Service
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server

	sweepCancel context.CancelFunc
}

// NewApplication constructs every component in dependency order. A failure at
// any stage tears down what was already opened.
func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := eventstore.NewStore(eventstore.Options{
		Path:            cfg.Database.Path,
		ConnMaxLifetime: cfg.Database.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}

	cache, err := metrics.NewRedisCache(cfg.Cache)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect snapshot cache: %w", err)
	}

	tunables := metrics.NewTunables(cfg.Metrics, cfg.Push.Interval)
	engine := metrics.NewEngine(store, cache, tunables)

	registry := websocket.NewRegistry(websocket.Options{
		MaxPerLearner:     cfg.WebSocket.MaxConnectionsPerUser,
		HeartbeatInterval: cfg.WebSocket.HeartbeatInterval,
		HeartbeatTimeout:  cfg.WebSocket.HeartbeatTimeout,
	})

	pusher := push.NewService(engine, store, registry, tunables)

	wsHandler := websocket.NewHandler(registry, store, engine, pusher,
		cfg.WebSocket.BufferSize, cfg.WebSocket.WriteTimeout)

	apiServer := api.NewServer(registry, pusher)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:     mux,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// WriteTimeout stays unset: it would sever long-lived WebSocket
		// connections served by the same listener.
	}

	return &Application{
		config:     cfg,
		store:      store,
		cache:      cache,
		tunables:   tunables,
		engine:     engine,
		registry:   registry,
		pusher:     pusher,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start binds the listener, then launches the stale-connection sweeper and
// the HTTP serve loop. Binding up front makes a bad address or occupied port
// a synchronous error instead of a late failure in the serve goroutine.
func (a *Application) Start() error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("HTTP server failed to start: %w", err)
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	a.sweepCancel = sweepCancel
	go a.registry.RunSweeper(sweepCtx, a.config.WebSocket.SweepInterval)

	go func() {
		log.Printf("HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts components down in reverse dependency order: stop accepting
// HTTP, stop the push loops, drop the connections, then release storage.
func (a *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down")

	if a.sweepCancel != nil {
		a.sweepCancel()
	}

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	a.pusher.StopAll()
	a.registry.CloseAll()

	if err := a.cache.Close(); err != nil {
		log.Printf("Cache close error: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Printf("Event store close error: %v", err)
	}

	log.Printf("Shutdown complete")
	return nil
}
