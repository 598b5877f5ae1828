package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/models"
)

// EventHandler processes one identity event. A returned error naks the
// message so JetStream redelivers it.
type EventHandler func(ctx context.Context, ev models.IdentityEvent) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeOptions configure ConsumeIdentityEvents.
type ConsumeOptions struct {
	// Durable names a consumer that survives restarts. Empty creates an
	// ephemeral consumer that only sees new events.
	Durable string
	// Types restricts delivery to these event types; empty means all.
	Types   []models.IdentityEventType
	Workers int
}

func (o ConsumeOptions) config() jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
	}
	if o.Durable != "" {
		cfg.Name = o.Durable
		cfg.Durable = o.Durable
	} else {
		cfg.DeliverPolicy = jetstream.DeliverNewPolicy
		cfg.InactiveThreshold = time.Minute
	}

	switch len(o.Types) {
	case 0:
		cfg.FilterSubject = IdentitiesSubjectBase + ".>"
	case 1:
		cfg.FilterSubject = Subject(o.Types[0])
	default:
		for _, t := range o.Types {
			cfg.FilterSubjects = append(cfg.FilterSubjects, Subject(t))
		}
	}
	return cfg
}

// ConsumeIdentityEvents starts a fetch loop feeding opts.Workers goroutines.
// It returns once the consumer exists; processing stops when ctx is done.
func (c *Consumer) ConsumeIdentityEvents(ctx context.Context, opts ConsumeOptions, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, IdentitiesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", IdentitiesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, opts.config())
	if err != nil {
		return fmt.Errorf("create consumer %q: %w", opts.Durable, err)
	}

	workers := max(1, opts.Workers)
	msgCh := make(chan jetstream.Msg, workers*2)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workers, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch identity events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workers; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				handle(ctx, workerID, msg, handler)
			}
		}(i)
	}

	slog.Info("identity event consumer started", "consumer", opts.Durable, "workers", workers)
	return nil
}

func handle(ctx context.Context, workerID int, msg jetstream.Msg, handler EventHandler) {
	var ev models.IdentityEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		// Malformed payloads never become valid; drop them.
		slog.Error("decode identity event", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}

	if err := handler(ctx, ev); err != nil {
		slog.Error("process identity event error", "worker", workerID, "type", ev.Type,
			"identifier", ev.Identifier, "error", err)
		_ = msg.NakWithDelay(5 * time.Second)
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
