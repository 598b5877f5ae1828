package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

// EventPublisher delivers identity lifecycle events. A nil publisher disables events.
type EventPublisher interface {
	PublishIdentityEvent(ctx context.Context, ev models.IdentityEvent) error
}

func publish(ctx context.Context, p EventPublisher, ev models.IdentityEvent) {
	if p == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if err := p.PublishIdentityEvent(context.WithoutCancel(ctx), ev); err != nil {
		slog.Error("publish identity event", "type", ev.Type, "identifier", ev.Identifier, "error", err)
	}
}

// reportOrphans logs asset keys that could not be removed and asks the
// cleanup worker to retry them.
func reportOrphans(ctx context.Context, p EventPublisher, identifier, reason string, refs []string) {
	if len(refs) == 0 {
		return
	}
	slog.Error("orphaned assets", "identifier", identifier, "reason", reason, "refs", refs)
	observability.OrphanedAssets.WithLabelValues("reported").Add(float64(len(refs)))
	publish(ctx, p, models.IdentityEvent{
		Type:       models.EventAssetsOrphaned,
		Identifier: identifier,
		AssetRefs:  refs,
		Reason:     reason,
	})
}

func observeStage(stage Stage) func() {
	start := time.Now()
	return func() {
		observability.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}
