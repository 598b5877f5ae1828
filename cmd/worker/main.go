package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
)

const orphanConsumer = "orphan-cleaner"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting faceid maintenance worker",
		"workers", cfg.Worker.Workers,
		"integrity_interval", cfg.Worker.Interval().String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.OpenIdentityStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("open identity store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	assets, err := storage.OpenAssetStore(ctx, cfg)
	if err != nil {
		slog.Error("open asset store", "backend", cfg.Assets.Backend, "error", err)
		os.Exit(1)
	}

	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Error("ensure nats streams", "error", err)
			os.Exit(1)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeIdentityEvents(ctx, queue.ConsumeOptions{
			Durable: orphanConsumer,
			Types:   []models.IdentityEventType{models.EventAssetsOrphaned},
			Workers: cfg.Worker.Workers,
		}, cleanOrphans(assets))
		if err != nil {
			slog.Error("start orphan consumer", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("nats url not set; orphaned assets are only found by the integrity check")
	}

	// The worker audits but never publishes; orphans it finds are reported in the check.
	maintainer := identity.NewMaintainer(store, assets, nil)
	if interval := cfg.Worker.Interval(); interval > 0 {
		go runIntegrityChecks(ctx, maintainer, interval)
	}

	if producer != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					pending, err := producer.PendingOrphans(ctx, orphanConsumer)
					if err == nil {
						observability.OrphanBacklog.Set(float64(pending))
					}
				}
			}
		}()
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

// cleanOrphans deletes the asset keys carried by an orphan report. A failed
// deletion is returned so the message is redelivered.
func cleanOrphans(assets storage.AssetStore) queue.EventHandler {
	return func(ctx context.Context, ev models.IdentityEvent) error {
		if len(ev.AssetRefs) == 0 {
			return nil
		}
		if err := storage.DeleteAll(ctx, assets, ev.AssetRefs); err != nil {
			observability.OrphanedAssets.WithLabelValues("failed").Add(float64(len(ev.AssetRefs)))
			return fmt.Errorf("clean orphans of %s: %w", ev.Identifier, err)
		}
		observability.OrphanedAssets.WithLabelValues("cleaned").Add(float64(len(ev.AssetRefs)))
		slog.Info("orphaned assets removed", "identifier", ev.Identifier, "reason", ev.Reason, "count", len(ev.AssetRefs))
		return nil
	}
}

func runIntegrityChecks(ctx context.Context, m *identity.Maintainer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := m.Check(ctx)
		switch {
		case err != nil:
			slog.Error("integrity check", "error", err)
		case len(report.Issues) > 0:
			slog.Warn("integrity check found issues", "identities", report.CheckedIdentities, "issues", len(report.Issues))
			for _, issue := range report.Issues {
				slog.Warn("integrity issue", "type", issue.Type, "identifier", issue.Identifier, "ref", issue.Ref, "detail", issue.Detail)
			}
		default:
			slog.Info("integrity check passed", "identities", report.CheckedIdentities, "assets", report.CheckedAssets)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
