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

	"github.com/your-org/faceid/internal/api"
	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

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

	slog.Info("starting faceid API service", "port", cfg.Server.Port)

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

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Without NATS, lifecycle events go straight to WebSocket clients.
	var events identity.EventPublisher = hub
	var natsCheck handlers.Pinger
	if cfg.NATS.URL != "" {
		producer, consumer, err := connectNATS(ctx, cfg.NATS.URL, hub)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		defer consumer.Close()
		events = producer
		natsCheck = handlers.PingFunc(func(context.Context) error { return producer.Ping() })
	} else {
		slog.Warn("nats url not set; identity events are only broadcast locally")
	}

	visionModels, err := vision.LoadONNX(cfg.Vision)
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer visionModels.Close()

	deps := identity.Deps{
		Detector:  visionModels.Detector,
		Encoder:   visionModels.Encoder,
		Segmenter: visionModels.SegmenterOrNil(),
		Store:     store,
		Assets:    assets,
		Events:    events,
	}
	policy := identity.PolicyFromConfig(cfg.Identity)
	ids := identity.NewGenerator(cfg.Identity.Prefix, store, identity.WithMaxAttempts(cfg.Identity.MaxIDAttempts))

	limiter := api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	defer limiter.Stop()

	router := api.NewRouter(api.RouterConfig{
		APIKey:     cfg.Server.APIKey,
		Registrar:  identity.NewRegistrar(deps, ids, policy),
		Recognizer: identity.NewRecognizer(deps, policy),
		Maintainer: identity.NewMaintainer(store, assets, events),
		Checks: map[string]handlers.Pinger{
			"store":  store,
			"assets": assets,
			"nats":   natsCheck,
		},
		Hub:            hub,
		RateLimiter:    limiter,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("API server stopped")
}

// connectNATS sets up the event stream and relays registered and deleted
// events from it to the WebSocket hub, so every API replica broadcasts
// changes made through any other replica.
func connectNATS(ctx context.Context, url string, hub *ws.Hub) (*queue.Producer, *queue.Consumer, error) {
	producer, err := queue.NewProducer(url)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		producer.Close()
		return nil, nil, err
	}

	consumer, err := queue.NewConsumer(url)
	if err != nil {
		producer.Close()
		return nil, nil, err
	}

	err = consumer.ConsumeIdentityEvents(ctx, queue.ConsumeOptions{
		Types:   []models.IdentityEventType{models.EventRegistered, models.EventDeleted},
		Workers: 1,
	}, hub.PublishIdentityEvent)
	if err != nil {
		slog.Warn("start websocket relay", "error", err)
	}
	return producer, consumer, nil
}
