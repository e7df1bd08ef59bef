// Package server assembles the kernel daemon: configuration, logging,
// metrics, the event pipeline, the kernel itself, and the monitor API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	api "github.com/ferrous-os/ferrous/internal/api/http"
	"github.com/ferrous-os/ferrous/internal/events"
	"github.com/ferrous-os/ferrous/internal/infrastructure/config"
	"github.com/ferrous-os/ferrous/internal/infrastructure/logging"
	"github.com/ferrous-os/ferrous/internal/infrastructure/monitoring"
	"github.com/ferrous-os/ferrous/internal/kernel"
	"github.com/ferrous-os/ferrous/internal/memory"
)

// statsSampleEvery is how often gauges are refreshed from kernel state.
const statsSampleEvery = 5 * time.Second

// Server wraps the kernel and its monitor API.
type Server struct {
	kernel  *kernel.Kernel
	journal *events.Journal
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	httpSrv *http.Server
	stop    chan struct{}
}

// New assembles a server from configuration.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing kernel daemon",
		zap.String("monitor_port", cfg.Monitor.Port),
		zap.Int("queue_capacity", cfg.IPC.QueueCapacity),
		zap.Int("space_limit", cfg.IPC.SpaceLimit),
	)

	metrics := monitoring.NewMetrics()
	journal := events.NewJournal(cfg.IPC.JournalSize)

	// Every kernel event is logged, counted, and retained for the
	// monitor API.
	sink := events.Multi{
		events.NewLogSink(logger.Logger),
		events.NewMetricsSink(metrics),
		journal,
	}

	k := kernel.New(kernel.Options{
		Log:           logger,
		Sink:          sink,
		Metrics:       metrics,
		Allocator:     memory.NewHeapAllocator(),
		QueueCapacity: cfg.IPC.QueueCapacity,
		SpaceLimit:    cfg.IPC.SpaceLimit,
	})

	if cfg.Policy.Path != "" {
		policy, err := kernel.LoadPolicy(cfg.Policy.Path)
		if err != nil {
			return nil, fmt.Errorf("boot policy: %w", err)
		}
		pids, err := k.ApplyPolicy(policy)
		if err != nil {
			return nil, fmt.Errorf("boot policy: %w", err)
		}
		logger.Info("boot policy applied",
			zap.String("path", cfg.Policy.Path),
			zap.Int("processes", len(pids)))
	}

	s := &Server{
		kernel:  k,
		journal: journal,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		stop:    make(chan struct{}),
	}

	if cfg.Monitor.Enabled {
		handlers := api.NewHandlers(k, journal, metrics, logger)
		router := api.NewRouter(handlers, metrics, cfg)
		s.httpSrv = &http.Server{
			Addr:              cfg.Monitor.Host + ":" + cfg.Monitor.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return s, nil
}

// Kernel returns the assembled kernel.
func (s *Server) Kernel() *kernel.Kernel { return s.kernel }

// Run starts the stats sampler and, if enabled, the monitor API.
// Blocks until the HTTP server exits or, with the monitor disabled,
// until Close.
func (s *Server) Run() error {
	go s.sampleStats()

	if s.httpSrv == nil {
		s.logger.Info("monitor API disabled")
		<-s.stop
		return nil
	}
	s.logger.Info("monitor API listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// sampleStats periodically refreshes gauges from kernel state.
func (s *Server) sampleStats() {
	ticker := time.NewTicker(statsSampleEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st := s.kernel.Stats()
			s.metrics.SetProcessesActive(st.Processes)
			s.metrics.SetEndpointsActive(st.Endpoints)
			s.metrics.SetRegionsActive(st.Regions)
			s.metrics.SetCapabilitiesLive(st.Capabilities)
			s.metrics.SetQueueDepth(st.QueueDepth)
			s.metrics.SetBlockedTasks("send", st.BlockedSenders)
			s.metrics.SetBlockedTasks("receive", st.BlockedReceivers)
		case <-s.stop:
			return
		}
	}
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	s.logger.Info("shutting down")
	close(s.stop)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("monitor API shutdown failed", zap.Error(err))
			return err
		}
	}

	_ = s.logger.Sync()
	return nil
}
