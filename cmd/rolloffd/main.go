// Command rolloffd runs the tie-resolution daemon: an HTTP API for entity
// collections, a websocket endpoint for owners and observers, and a
// Prometheus metrics endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/rolloff/internal/adapters/events"
	"github.com/okian/rolloff/internal/adapters/http/api"
	"github.com/okian/rolloff/internal/adapters/ws"
	service "github.com/okian/rolloff/internal/app"
	"github.com/okian/rolloff/internal/config"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection; the custom registry carries
	// only engine metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input).
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Create and start the service with configuration options.
	svc := service.New(
		service.WithLogger(log),
		service.WithDieFaces(cfg.DieFaces),
		service.WithSolicitTimeout(time.Duration(cfg.SolicitTimeoutMS)*time.Millisecond),
		service.WithSettleDelay(time.Duration(cfg.SettleDelayMS)*time.Millisecond),
		service.WithRankEpsilon(cfg.RankEpsilon),
		service.WithAutoResolve(cfg.AutoResolve),
		service.WithIncludeUnowned(cfg.IncludeUnowned),
		service.WithEventQueueSize(cfg.EventQueueSize),
		service.WithUpdateBuffer(cfg.UpdateBufferSize),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Websocket hub: delivers draw solicitations to remote owners and fans
	// engine events out to observers.
	hub := ws.NewHub(svc.Gateway(), ws.WithSendBuffer(cfg.WSSendBuffer))
	go hub.Run(ctx)

	// Dispatcher: drains the event queue into the hub.
	dispatcher := events.NewDispatcher(svc.EventQueue(), []events.Sink{hub})
	go dispatcher.Run(ctx)

	// HTTP routes.
	router := mux.NewRouter()
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, router)
	router.HandleFunc("/ws", hub.ServeWS)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "dispatcher shutdown failed", logger.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}
