package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/liveness-gate/internal/app/scanning"
	"github.com/ahrav/liveness-gate/internal/config"
	"github.com/ahrav/liveness-gate/internal/config/viperloader"
	"github.com/ahrav/liveness-gate/internal/domain/events"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
	"github.com/ahrav/liveness-gate/internal/gate/api"
	"github.com/ahrav/liveness-gate/internal/gate/metrics"
	"github.com/ahrav/liveness-gate/internal/infra/detector/httpdetector"
	"github.com/ahrav/liveness-gate/internal/infra/eventbus/memory"
	"github.com/ahrav/liveness-gate/pkg/common"
	"github.com/ahrav/liveness-gate/pkg/common/logger"
	"github.com/ahrav/liveness-gate/pkg/common/otel"
)

const serviceType = "liveness-gate"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	loader := viperloader.NewLoader(os.Getenv("LIVENESS_CONFIG_FILE"))
	cfg, err := loader.Load(context.Background())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("LIVENESS-GATE-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	logg := logger.NewWithMetadata(os.Stdout, parseLogLevel(cfg.Logging.Level), svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tracer trace.Tracer
	if cfg.Telemetry.Enabled {
		tp, telemetryTeardown, err := otel.InitTelemetry(logg, otel.Config{
			ServiceName:      serviceType,
			ExporterEndpoint: cfg.Telemetry.Endpoint,
			ExcludedRoutes: map[string]struct{}{
				"/v1/health":    {},
				"/v1/readiness": {},
			},
			Probability: cfg.Telemetry.SampleRate,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"hostname":         hostname,
			},
			InsecureExporter: true,
		})
		if err != nil {
			logg.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(ctx)
		tracer = tp.Tracer(serviceType)
	} else {
		tracer = tracenoop.NewTracerProvider().Tracer(serviceType)
	}

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(probeAddr(cfg), ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			logg.Error(ctx, "error shutting down health server", "error", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		if err := common.RunMetricsServer(addr); err != nil {
			logg.Error(ctx, "metrics server error", "error", err)
		}
	}()

	detector, err := httpdetector.NewClient(cfg.Detector, logg, tracer)
	if err != nil {
		logg.Error(ctx, "failed to create detector client", "error", err)
		os.Exit(1)
	}
	if err := detector.WaitForReady(ctx); err != nil {
		logg.Error(ctx, "detector unavailable", "error", err)
		os.Exit(1)
	}

	bus := memory.NewBroker()
	defer bus.Close()
	publisher := memory.NewDomainEventPublisher(bus)

	// Mirror the session lifecycle onto the log stream for operators.
	err = bus.Subscribe(ctx, []events.EventType{
		liveness.EventTypeScanStarted,
		liveness.EventTypeScanStopped,
		liveness.EventTypeScanCompleted,
		liveness.EventTypeScanFailed,
		liveness.EventTypeStageCompleted,
		liveness.EventTypeStageFailed,
	}, func(ctx context.Context, evt events.EventEnvelope) error {
		logg.Info(ctx, "scan event", "event_type", evt.Type, "payload", evt.Payload)
		return nil
	})
	if err != nil {
		logg.Error(ctx, "failed to subscribe to scan events", "error", err)
		os.Exit(1)
	}

	scanCfg, err := cfg.ScanConfig()
	if err != nil {
		logg.Error(ctx, "invalid scan config", "error", err)
		os.Exit(1)
	}

	orchestrator, err := scanning.NewScanOrchestrator(
		scanCfg,
		detector,
		publisher,
		logg,
		tracer,
		scanning.WithMetrics(metrics.New()),
	)
	if err != nil {
		logg.Error(ctx, "failed to create scan orchestrator", "error", err)
		os.Exit(1)
	}

	apiMux := http.NewServeMux()
	api.NewServer(orchestrator, logg, tracer).Routes(apiMux)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:           apiMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server error", "error", err)
		}
	}()
	defer func() {
		if err := apiServer.Shutdown(ctx); err != nil {
			logg.Error(ctx, "error shutting down api server", "error", err)
		}
	}()

	if err := orchestrator.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start scan session", "error", err)
		os.Exit(1)
	}

	ready.Store(true)
	logg.Info(ctx, "liveness gate running", "hostname", hostname)

	<-sigCh
	logg.Info(ctx, "shutdown signal received, stopping scan session")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := orchestrator.Stop(stopCtx); err != nil {
		logg.Error(ctx, "failed to stop scan session", "error", err)
	}

	logg.Info(ctx, "shutdown complete")
}

func probeAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Probe.Host, cfg.Probe.Port)
}

func parseLogLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}
