package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conveyor-automation/conveyor/pkg/eventbus"
	"github.com/conveyor-automation/conveyor/pkg/metrics"
	"github.com/conveyor-automation/conveyor/pkg/models"
	"github.com/conveyor-automation/conveyor/pkg/queue"
	queuepostgres "github.com/conveyor-automation/conveyor/pkg/queue/postgres"
	"github.com/conveyor-automation/conveyor/pkg/service"
	storefile "github.com/conveyor-automation/conveyor/pkg/store/file"
)

type ServerConfig struct {
	WorkflowsPath  string
	TriggersPath   string
	DatabaseURL    string
	WebhookPort    int
	MetricsPort    int
	DispatchBuffer int
}

type Server struct {
	config ServerConfig
	logger *slog.Logger
}

func NewServer(config ServerConfig, logger *slog.Logger) *Server {
	return &Server{config: config, logger: logger}
}

// Run blocks until SIGINT or SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var q queue.Queue

	if s.config.DatabaseURL != "" {
		pg, err := queuepostgres.NewQueue(ctx, s.logger, s.config.DatabaseURL, queue.Options{})
		if err != nil {
			return fmt.Errorf("failed to open postgres queue: %w", err)
		}

		defer func() {
			err := pg.Close(context.WithoutCancel(ctx))
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to close postgres queue", "error", err)
			}
		}()

		q = pg
	}

	bus := eventbus.NewGoChannelEventBus(watermill.NewSlogLogger(s.logger))
	defer func() {
		err := bus.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	m := metrics.New()

	svc := service.New(service.Config{
		Queue:          q,
		Store:          storefile.NewStore(s.config.WorkflowsPath),
		EventBus:       bus,
		Metrics:        m,
		WebhookPort:    s.config.WebhookPort,
		DispatchBuffer: s.config.DispatchBuffer,
		Logger:         s.logger,
	})

	svc.Start(ctx)
	defer svc.Stop(context.WithoutCancel(ctx))

	if s.config.MetricsPort > 0 {
		s.serveMetrics(ctx, m)
	}

	err := s.loadTriggers(ctx, svc)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Conveyor server running",
		"workflows_path", s.config.WorkflowsPath,
		"queue", queueKind(s.config.DatabaseURL),
		"webhook_port", s.config.WebhookPort)

	<-ctx.Done()

	s.logger.Info("Shutting down")

	return nil
}

// loadTriggers registers and starts the trigger definitions from the boot
// file. Workflows referenced by a trigger must already exist in the store.
func (s *Server) loadTriggers(ctx context.Context, svc *service.Service) error {
	if s.config.TriggersPath == "" {
		return nil
	}

	body, err := os.ReadFile(s.config.TriggersPath)
	if err != nil {
		return fmt.Errorf("failed to read triggers file: %w", err)
	}

	var configs []models.TriggerConfig

	err = json.Unmarshal(body, &configs)
	if err != nil {
		return fmt.Errorf("failed to parse triggers file: %w", err)
	}

	for _, config := range configs {
		triggerID, err := svc.RegisterTrigger(ctx, config)
		if err != nil {
			return fmt.Errorf("failed to register trigger %q: %w", config.Name, err)
		}

		err = svc.StartTrigger(ctx, triggerID)
		if err != nil {
			return fmt.Errorf("failed to start trigger %s: %w", triggerID, err)
		}

		s.logger.InfoContext(ctx, "Trigger started", "trigger_id", triggerID, "type", config.Type)
	}

	return nil
}

func (s *Server) serveMetrics(ctx context.Context, m *metrics.Metrics) {
	registry := prometheus.NewRegistry()

	err := m.Register(registry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to register metrics", "error", err)

		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(s.config.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.logger.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()
}

func queueKind(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}

	return "postgres"
}
