package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/models"
)

const (
	IdentitiesStreamName  = "IDENTITIES"
	IdentitiesSubjectBase = "identities"
)

// Subject returns the subject an identity event of type t is published on.
func Subject(t models.IdentityEventType) string {
	return IdentitiesSubjectBase + "." + string(t)
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// Producer publishes identity lifecycle events to JetStream.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the identity event stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        IdentitiesStreamName,
		Subjects:    []string{IdentitiesSubjectBase + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Identity registrations, deletions and orphaned asset reports",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishIdentityEvent publishes ev on identities.<type>. Each publish
// carries a fresh message ID so client retries are deduplicated.
func (p *Producer) PublishIdentityEvent(ctx context.Context, ev models.IdentityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal identity event: %w", err)
	}

	_, err = p.js.Publish(ctx, Subject(ev.Type), payload, jetstream.WithMsgID(uuid.NewString()))
	if err != nil {
		return fmt.Errorf("publish identity event: %w", err)
	}
	return nil
}

// PendingOrphans returns the number of orphaned asset reports stored in the
// stream that no consumer has acknowledged yet for the given durable.
func (p *Producer) PendingOrphans(ctx context.Context, consumerName string) (uint64, error) {
	stream, err := p.js.Stream(ctx, IdentitiesStreamName)
	if err != nil {
		return 0, err
	}
	cons, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return 0, err
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.NumPending + uint64(info.NumAckPending), nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
