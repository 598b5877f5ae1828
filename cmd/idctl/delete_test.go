package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
)

type fixture struct {
	store  *storage.MemoryStore
	assets *storage.FileStore
}

// newFixture seeds Alice and Bob and points the commands at them.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	assets, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	f := &fixture{store: storage.NewMemoryStore(), assets: assets}

	for _, seed := range []struct{ id, name string }{
		{"USR2610180001", "Alice"},
		{"USR2610180002", "Bob"},
	} {
		row := &models.Identity{
			Identifier:   seed.id,
			DisplayName:  seed.name,
			Embedding:    []float32{1, 0, 0},
			ImageRef:     storage.FacesPrefix + seed.id + "/a.jpg",
			EmbeddingRef: storage.EmbeddingsPrefix + seed.id + "/a.f32",
		}
		for _, ref := range row.AssetRefs() {
			if err := assets.Put(ctx, ref, []byte("x"), "application/octet-stream"); err != nil {
				t.Fatalf("Put(%s) error = %v", ref, err)
			}
		}
		if err := f.store.Insert(ctx, row); err != nil {
			t.Fatalf("Insert(%s) error = %v", seed.id, err)
		}
	}

	prev := openServices
	openServices = func(context.Context) (*services, error) {
		return &services{store: f.store, maintainer: identity.NewMaintainer(f.store, f.assets, nil)}, nil
	}
	t.Cleanup(func() { openServices = prev })
	return f
}

// run executes idctl with args and returns stdout and the command error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	deleteDryRun, jsonOutput = false, false
	listSearch, listPage, listPageSize = "", 1, 50

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) exists(t *testing.T, id string) bool {
	t.Helper()
	got, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return got != nil
}

func TestDeleteCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantErr    bool
		wantOut    []string
		wantKept   []string
		wantGone   []string
		assetsKept bool
	}{
		{
			name:       "single dry run",
			args:       []string{"delete", "--dry-run", "USR2610180001"},
			wantOut:    []string{"Would delete USR2610180001 (Alice)"},
			wantKept:   []string{"USR2610180001", "USR2610180002"},
			assetsKept: true,
		},
		{
			name:     "single by name",
			args:     []string{"delete", "Bob"},
			wantOut:  []string{"Deleted USR2610180002 (Bob)"},
			wantKept: []string{"USR2610180001"},
			wantGone: []string{"USR2610180002"},
		},
		{
			name:     "batch",
			args:     []string{"delete", "USR2610180001", "Bob"},
			wantOut:  []string{"2 deleted, 0 failed of 2 requested"},
			wantGone: []string{"USR2610180001", "USR2610180002"},
		},
		{
			name:       "batch dry run with a missing key",
			args:       []string{"delete", "--dry-run", "Alice", "USR2610180002", "nobody"},
			wantErr:    true,
			wantOut:    []string{"would   USR2610180001", "failed  nobody", "2 would be deleted, 1 failed of 3 requested"},
			wantKept:   []string{"USR2610180001", "USR2610180002"},
			assetsKept: true,
		},
		{
			name:     "unknown key",
			args:     []string{"delete", "nobody"},
			wantErr:  true,
			wantKept: []string{"USR2610180001", "USR2610180002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			out, err := run(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, id := range tt.wantKept {
				if !f.exists(t, id) {
					t.Errorf("%s was deleted", id)
				}
			}
			for _, id := range tt.wantGone {
				if f.exists(t, id) {
					t.Errorf("%s still exists", id)
				}
			}
			if tt.assetsKept {
				ok, _ := f.assets.Exists(context.Background(), storage.FacesPrefix+"USR2610180001/a.jpg")
				if !ok {
					t.Error("dry run removed an asset")
				}
			}
		})
	}
}

func TestDeleteCommandJSON(t *testing.T) {
	newFixture(t)
	out, err := run(t, "delete", "--json", "--dry-run", "USR2610180001", "Bob")
	if err != nil {
		t.Fatalf("delete error = %v", err)
	}

	var res identity.BatchResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, out)
	}
	if !res.DryRun || res.WouldDelete != 2 || res.Deleted != 0 || len(res.Items) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestListAndStatsCommands(t *testing.T) {
	newFixture(t)

	out, err := run(t, "list", "--search", "ali")
	if err != nil {
		t.Fatalf("list error = %v", err)
	}
	if !strings.Contains(out, "USR2610180001") || strings.Contains(out, "USR2610180002") {
		t.Errorf("list --search ali output:\n%s", out)
	}
	if !strings.Contains(out, "1 of 1 identities") {
		t.Errorf("list footer missing:\n%s", out)
	}

	if _, err := run(t, "list", "--page", "0"); err == nil {
		t.Error("list --page 0 error = nil")
	}

	out, err = run(t, "stats")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	if !strings.Contains(out, "Identities:       2") {
		t.Errorf("stats output:\n%s", out)
	}
}
