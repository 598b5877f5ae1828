package queue

import (
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/models"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		typ  models.IdentityEventType
		want string
	}{
		{models.EventRegistered, "identities.registered"},
		{models.EventDeleted, "identities.deleted"},
		{models.EventAssetsOrphaned, "identities.assets_orphaned"},
	}
	for _, tt := range tests {
		if got := Subject(tt.typ); got != tt.want {
			t.Errorf("Subject(%s) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestConsumeOptionsConfig(t *testing.T) {
	durable := ConsumeOptions{Durable: "cleanup", Types: []models.IdentityEventType{models.EventAssetsOrphaned}}.config()
	if durable.Durable != "cleanup" || durable.Name != "cleanup" {
		t.Errorf("durable name = %q/%q", durable.Name, durable.Durable)
	}
	if durable.FilterSubject != "identities.assets_orphaned" || len(durable.FilterSubjects) != 0 {
		t.Errorf("filter = %q %v", durable.FilterSubject, durable.FilterSubjects)
	}
	if durable.AckPolicy != jetstream.AckExplicitPolicy {
		t.Errorf("AckPolicy = %v, want explicit", durable.AckPolicy)
	}

	live := ConsumeOptions{Types: []models.IdentityEventType{models.EventRegistered, models.EventDeleted}}.config()
	if live.Durable != "" || live.DeliverPolicy != jetstream.DeliverNewPolicy {
		t.Errorf("ephemeral consumer config = %+v", live)
	}
	if live.FilterSubject != "" || len(live.FilterSubjects) != 2 {
		t.Errorf("filters = %q %v", live.FilterSubject, live.FilterSubjects)
	}

	all := ConsumeOptions{}.config()
	if all.FilterSubject != "identities.>" {
		t.Errorf("FilterSubject = %q, want identities.>", all.FilterSubject)
	}
}
