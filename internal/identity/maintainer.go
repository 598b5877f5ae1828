package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/storage"
)

// Maintainer deletes identities and audits the store against its assets.
type Maintainer struct {
	store  storage.IdentityStore
	assets storage.AssetStore
	events EventPublisher
	now    func() time.Time
}

func NewMaintainer(store storage.IdentityStore, assets storage.AssetStore, events EventPublisher) *Maintainer {
	return &Maintainer{store: store, assets: assets, events: events, now: time.Now}
}

// Resolve finds an identity by exact identifier and falls back to the most
// recent identity with that display name. Names are not unique, so a name
// shared by several identities resolves to the newest one only.
func (m *Maintainer) Resolve(ctx context.Context, key string) (*models.Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, newError(KindValidation, StageMaintaining, "identifier or name must not be empty")
	}

	identity, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, wrapError(KindPersistence, StageMaintaining, err, "get identity %s", key)
	}
	if identity != nil {
		return identity, nil
	}

	identity, err = m.store.FindByName(ctx, key)
	if err != nil {
		return nil, wrapError(KindPersistence, StageMaintaining, err, "find identity by name %q", key)
	}
	if identity == nil {
		return nil, &Error{
			Kind:       KindNotFound,
			Stage:      StageMaintaining,
			Message:    fmt.Sprintf("no identity with identifier or name %q", key),
			Identifier: key,
		}
	}
	return identity, nil
}

// Get returns the identity with the exact identifier.
func (m *Maintainer) Get(ctx context.Context, identifier string) (*models.Identity, error) {
	identity, err := m.store.Get(ctx, identifier)
	if err != nil {
		return nil, wrapError(KindPersistence, StageMaintaining, err, "get identity %s", identifier)
	}
	if identity == nil {
		return nil, &Error{
			Kind:       KindNotFound,
			Stage:      StageMaintaining,
			Message:    fmt.Sprintf("identity %s not found", identifier),
			Identifier: identifier,
		}
	}
	return identity, nil
}

// Image returns the stored face crop of an identity.
func (m *Maintainer) Image(ctx context.Context, identifier string) ([]byte, error) {
	identity, err := m.Get(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity.ImageRef == "" {
		return nil, newError(KindNotFound, StageMaintaining, "identity %s has no image", identifier)
	}
	data, err := m.assets.Get(ctx, identity.ImageRef)
	if err != nil {
		kind := KindPersistence
		if errors.Is(err, storage.ErrAssetNotFound) {
			kind = KindNotFound
		}
		return nil, wrapError(kind, StageMaintaining, err, "read image of %s", identifier)
	}
	return data, nil
}

func (m *Maintainer) List(ctx context.Context, q models.ListQuery) ([]models.Identity, int, error) {
	items, total, err := m.store.List(ctx, q)
	if err != nil {
		return nil, 0, wrapError(KindPersistence, StageMaintaining, err, "list identities")
	}
	return items, total, nil
}

// Stats counts identities, with "today" starting at local midnight.
func (m *Maintainer) Stats(ctx context.Context) (models.Stats, error) {
	now := m.now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	st, err := m.store.Stats(ctx, since)
	if err != nil {
		return models.Stats{}, wrapError(KindPersistence, StageMaintaining, err, "count identities")
	}
	observability.Identities.Set(float64(st.TotalIdentities))
	return st, nil
}

type DeleteOptions struct {
	// DryRun resolves the target and reports what would be removed.
	DryRun bool
	// Progress is called by DeleteMany after each item is settled.
	Progress func(BatchItem)
}

type DeleteResult struct {
	Key           string   `json:"key"`
	Identifier    string   `json:"identifier"`
	DisplayName   string   `json:"display_name"`
	DryRun        bool     `json:"dry_run,omitempty"`
	DeletedAssets []string `json:"deleted_assets"`
	FailedAssets  []string `json:"failed_assets,omitempty"`
}

// DeleteOne removes the identity named by key. Asset removal is best effort:
// failures are reported as orphans and do not keep the row alive.
func (m *Maintainer) DeleteOne(ctx context.Context, key string, opts DeleteOptions) (*DeleteResult, error) {
	identity, err := m.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.delete(ctx, key, identity, opts)
}

func (m *Maintainer) delete(ctx context.Context, key string, identity *models.Identity, opts DeleteOptions) (*DeleteResult, error) {
	res := &DeleteResult{
		Key:         key,
		Identifier:  identity.Identifier,
		DisplayName: identity.DisplayName,
		DryRun:      opts.DryRun,
	}
	refs := identity.AssetRefs()
	if opts.DryRun {
		res.DeletedAssets = refs
		return res, nil
	}

	for _, ref := range refs {
		if err := m.assets.Delete(ctx, ref); err != nil {
			slog.Warn("delete asset", "identifier", identity.Identifier, "ref", ref, "error", err)
			res.FailedAssets = append(res.FailedAssets, ref)
			continue
		}
		res.DeletedAssets = append(res.DeletedAssets, ref)
	}

	existed, err := m.store.Delete(ctx, identity.Identifier)
	if err != nil {
		slog.Error("identity row kept after its assets were removed", "identifier", identity.Identifier,
			"removed", res.DeletedAssets, "error", err)
		return nil, wrapError(KindPersistence, StageMaintaining, err, "delete identity %s", identity.Identifier)
	}
	if !existed {
		return nil, &Error{
			Kind:       KindNotFound,
			Stage:      StageMaintaining,
			Message:    fmt.Sprintf("identity %s was already deleted", identity.Identifier),
			Identifier: identity.Identifier,
		}
	}
	reportOrphans(ctx, m.events, identity.Identifier, "asset deletion failed", res.FailedAssets)

	publish(ctx, m.events, models.IdentityEvent{
		Type:        models.EventDeleted,
		Identifier:  identity.Identifier,
		DisplayName: identity.DisplayName,
		AssetRefs:   refs,
	})
	slog.Info("identity deleted", "identifier", identity.Identifier, "name", identity.DisplayName,
		"failed_assets", len(res.FailedAssets))
	return res, nil
}

type BatchItem struct {
	Key          string   `json:"key"`
	Success      bool     `json:"success"`
	Identifier   string   `json:"identifier,omitempty"`
	DisplayName  string   `json:"display_name,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Error        string   `json:"error,omitempty"`
	FailedAssets []string `json:"failed_assets,omitempty"`
}

type BatchResult struct {
	// Success is true only when every requested key was deleted, or for a
	// dry run, would have been.
	Success     bool        `json:"success"`
	DryRun      bool        `json:"dry_run,omitempty"`
	Requested   int         `json:"requested"`
	Deleted     int         `json:"deleted"`
	WouldDelete int         `json:"would_delete,omitempty"`
	Failed      int         `json:"failed"`
	Items       []BatchItem `json:"items"`
}

// DeleteMany resolves every key first. When none resolves the whole call
// fails with KindNotFound; otherwise each resolved key is deleted and items
// are reported in input order.
func (m *Maintainer) DeleteMany(ctx context.Context, keys []string, opts DeleteOptions) (*BatchResult, error) {
	if len(keys) == 0 {
		return nil, newError(KindValidation, StageMaintaining, "at least one identifier or name is required")
	}

	resolved := make([]*models.Identity, len(keys))
	errs := make([]error, len(keys))
	found := 0
	for i, key := range keys {
		resolved[i], errs[i] = m.Resolve(ctx, key)
		if errs[i] == nil {
			found++
		} else if k := KindOf(errs[i]); k == KindPersistence || k == KindSystem {
			return nil, errs[i]
		}
	}
	if found == 0 {
		return nil, newError(KindNotFound, StageMaintaining, "none of the %d identifiers or names exist", len(keys))
	}

	res := &BatchResult{Requested: len(keys), DryRun: opts.DryRun, Items: make([]BatchItem, 0, len(keys))}
	seen := make(map[string]bool)
	for i, key := range keys {
		item := BatchItem{Key: key}
		err := errs[i]
		if err == nil {
			identity := resolved[i]
			item.Identifier = identity.Identifier
			item.DisplayName = identity.DisplayName
			if seen[identity.Identifier] {
				err = newError(KindValidation, StageMaintaining, "identity %s was already requested in this batch", identity.Identifier)
			} else {
				seen[identity.Identifier] = true
				var dr *DeleteResult
				dr, err = m.delete(ctx, key, identity, opts)
				if dr != nil {
					item.FailedAssets = dr.FailedAssets
				}
			}
		}

		if err != nil {
			item.Kind = KindOf(err).String()
			item.Error = err.Error()
			res.Failed++
		} else {
			item.Success = true
			if opts.DryRun {
				res.WouldDelete++
			} else {
				res.Deleted++
			}
		}
		res.Items = append(res.Items, item)
		if opts.Progress != nil {
			opts.Progress(item)
		}
	}
	res.Success = res.Failed == 0
	return res, nil
}

// Integrity issue types.
const (
	IssueMissingAsset     = "missing_asset"
	IssueAssetCheckFailed = "asset_check_failed"
	IssueInvalidEmbedding = "invalid_embedding"
	IssueOrphanedAsset    = "orphaned_asset"
)

type IntegrityIssue struct {
	Type        string `json:"type"`
	Identifier  string `json:"identifier,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Ref         string `json:"ref,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type IntegrityReport struct {
	// Status is "ok" or "warning".
	Status            string           `json:"status"`
	CheckedIdentities int              `json:"checked_identities"`
	CheckedAssets     int              `json:"checked_assets"`
	Issues            []IntegrityIssue `json:"issues"`
	CheckedAt         time.Time        `json:"checked_at"`
}

// Check verifies every stored asset reference resolves and lists assets no
// identity references. It never modifies the store or the assets.
func (m *Maintainer) Check(ctx context.Context) (*IntegrityReport, error) {
	stored, err := m.store.All(ctx)
	if err != nil {
		return nil, wrapError(KindPersistence, StageMaintaining, err, "load identities")
	}

	report := &IntegrityReport{
		CheckedIdentities: len(stored),
		Issues:            []IntegrityIssue{},
		CheckedAt:         m.now().UTC(),
	}
	referenced := make(map[string]bool)

	for _, identity := range stored {
		if reason := embeddingProblem(identity.Embedding); reason != "" {
			report.Issues = append(report.Issues, IntegrityIssue{
				Type:        IssueInvalidEmbedding,
				Identifier:  identity.Identifier,
				DisplayName: identity.DisplayName,
				Detail:      reason,
			})
		}

		for _, ref := range identity.AssetRefs() {
			referenced[ref] = true
			report.CheckedAssets++

			ok, err := m.assets.Exists(ctx, ref)
			switch {
			case err != nil:
				report.Issues = append(report.Issues, IntegrityIssue{
					Type:        IssueAssetCheckFailed,
					Identifier:  identity.Identifier,
					DisplayName: identity.DisplayName,
					Ref:         ref,
					Detail:      err.Error(),
				})
			case !ok:
				report.Issues = append(report.Issues, IntegrityIssue{
					Type:        IssueMissingAsset,
					Identifier:  identity.Identifier,
					DisplayName: identity.DisplayName,
					Ref:         ref,
				})
			}
		}
	}

	for _, prefix := range []string{storage.FacesPrefix, storage.EmbeddingsPrefix} {
		keys, err := m.assets.List(ctx, prefix)
		if err != nil {
			return nil, wrapError(KindPersistence, StageMaintaining, err, "list assets under %s", prefix)
		}
		for _, key := range keys {
			if !referenced[key] {
				report.Issues = append(report.Issues, IntegrityIssue{Type: IssueOrphanedAsset, Ref: key})
			}
		}
	}

	report.Status = "ok"
	if len(report.Issues) > 0 {
		report.Status = "warning"
	}
	observability.IntegrityIssues.Set(float64(len(report.Issues)))
	slog.Info("integrity check complete", "identities", report.CheckedIdentities,
		"assets", report.CheckedAssets, "issues", len(report.Issues))
	return report, nil
}

func embeddingProblem(v []float32) string {
	if len(v) == 0 {
		return "embedding is empty"
	}
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "embedding contains non-finite values"
		}
		sum += f * f
	}
	if sum == 0 {
		return "embedding has zero norm"
	}
	return ""
}
