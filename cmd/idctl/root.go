package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "idctl",
	Short: "Administer the face identity store",
	Long: `idctl inspects and maintains registered identities: it lists them, prints
store statistics, deletes identities by identifier or display name, checks
that every stored asset exists and applies database migrations.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional
		_ = godotenv.Load()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// services holds what the maintenance commands operate on.
type services struct {
	store      storage.IdentityStore
	maintainer *identity.Maintainer
	producer   *queue.Producer
}

func (s *services) Close() {
	if s.producer != nil {
		s.producer.Close()
	}
	s.store.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// Commands print their own output; keep logs to warnings.
	observability.SetupLogger("warn", cfg.Logging.Format)
	return cfg, nil
}

// openServices is swapped in tests for services over local fixtures.
var openServices = connectServices

// connectServices connects the store and asset backend. Deletions are published
// on NATS when it is configured, so API replicas broadcast them.
func connectServices(ctx context.Context) (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := storage.OpenIdentityStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	assets, err := storage.OpenAssetStore(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open asset store: %w", err)
	}

	s := &services{store: store}
	var events identity.EventPublisher
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		s.producer = producer
		events = producer
	}
	s.maintainer = identity.NewMaintainer(store, assets, events)
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
