package identity

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/face"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

// Stage names a step of the registration state machine. A blocked
// registration reports the stage it stopped at in Error.Stage.
type Stage string

const (
	StageValidating           Stage = "validating"
	StageDetecting            Stage = "detecting"
	StageSelecting            Stage = "selecting"
	StageQualityGate          Stage = "quality_gate"
	StageIdentifierResolution Stage = "identifier_resolution"
	StageUniquenessGate       Stage = "uniqueness_gate"
	StagePersisting           Stage = "persisting"
	StageDone                 Stage = "done"

	// Recognition and maintenance stages.
	StageRecognizing Stage = "recognizing"
	StageMaintaining Stage = "maintaining"
)

const faceJPEGQuality = 95

type RegisterRequest struct {
	DisplayName string
	// Identifier is optional; an empty value asks the generator for one.
	Identifier string
	Image      []byte
	// TargetRegion biases selection toward the face the caller pointed at.
	TargetRegion *models.Box
}

type Registration struct {
	Identifier    string    `json:"identifier"`
	DisplayName   string    `json:"display_name"`
	CreatedAt     time.Time `json:"created_at"`
	ImageRef      string    `json:"image_ref"`
	EmbeddingRef  string    `json:"embedding_ref"`
	Confidence    float64   `json:"confidence"`
	FacesDetected int       `json:"faces_detected"`
}

// Registrar enrolls a single face under a new identity, enforcing the
// quality and uniqueness gates.
type Registrar struct {
	deps     Deps
	ids      *Generator
	selector *face.Selector
	matcher  *face.Matcher
	policy   Policy
}

func NewRegistrar(deps Deps, ids *Generator, policy Policy) *Registrar {
	return &Registrar{
		deps:     deps,
		ids:      ids,
		selector: face.NewSelector(),
		matcher:  face.NewMatcher(deps.Encoder.Dim()),
		policy:   policy,
	}
}

func (r *Registrar) Register(ctx context.Context, req RegisterRequest) (reg *Registration, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
			var e *Error
			if errors.As(err, &e) {
				slog.Info("registration blocked", "stage", e.Stage, "kind", e.Kind.String(), "reason", err.Error())
			}
		}
		observability.Registrations.WithLabelValues(outcome).Inc()
	}()

	name, img, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	if err := checkContext(ctx, StageDetecting); err != nil {
		return nil, err
	}
	done := observeStage(StageDetecting)
	detections, err := r.deps.Detector.Detect(ctx, img)
	done()
	if err != nil {
		return nil, wrapError(KindSystem, StageDetecting, err, "detect faces")
	}
	if len(detections) == 0 {
		return nil, newError(KindNoFace, StageDetecting, "no face detected in image")
	}
	observability.FacesDetected.WithLabelValues("register").Add(float64(len(detections)))

	best := r.selector.Select(detections, img.Bounds(), req.TargetRegion)[0]

	if err := r.qualityGate(best); err != nil {
		return nil, err
	}

	if req.Identifier != "" {
		if err := r.checkSuppliedIdentifier(ctx, req.Identifier); err != nil {
			return nil, err
		}
	}

	if err := checkContext(ctx, StageUniquenessGate); err != nil {
		return nil, err
	}
	done = observeStage("embedding")
	crop, embedding, err := r.deps.extract(ctx, img, best.Crop)
	done()
	if err != nil {
		return nil, wrapError(KindSystem, StageUniquenessGate, err, "extract face embedding")
	}

	if r.policy.Serialize {
		unlock, err := r.deps.Store.LockRegistrations(ctx)
		if err != nil {
			return nil, wrapError(KindPersistence, StageUniquenessGate, err, "acquire registration lock")
		}
		defer unlock()
	}

	if err := r.uniquenessGate(ctx, embedding); err != nil {
		return nil, err
	}

	identity, err := r.persistWithRetry(ctx, req.Identifier, name, crop, embedding)
	if err != nil {
		return nil, err
	}

	publish(ctx, r.deps.Events, models.IdentityEvent{
		Type:        models.EventRegistered,
		Identifier:  identity.Identifier,
		DisplayName: identity.DisplayName,
		AssetRefs:   identity.AssetRefs(),
		Timestamp:   identity.CreatedAt,
	})
	slog.Info("identity registered", "identifier", identity.Identifier, "name", identity.DisplayName,
		"confidence", best.Detection.Confidence, "faces", len(detections))

	return &Registration{
		Identifier:    identity.Identifier,
		DisplayName:   identity.DisplayName,
		CreatedAt:     identity.CreatedAt,
		ImageRef:      identity.ImageRef,
		EmbeddingRef:  identity.EmbeddingRef,
		Confidence:    best.Detection.Confidence,
		FacesDetected: len(detections),
	}, nil
}

func (r *Registrar) validate(req RegisterRequest) (string, image.Image, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return "", nil, newError(KindValidation, StageValidating, "display name must not be empty")
	}
	if req.Identifier != "" {
		if ok, reason := r.ids.Validate(req.Identifier); !ok {
			return "", nil, newError(KindValidation, StageValidating, "invalid identifier %q: %s", req.Identifier, reason)
		}
	}
	if req.TargetRegion != nil && !req.TargetRegion.Valid() {
		return "", nil, newError(KindValidation, StageValidating, "target region must have positive width and height")
	}
	img, _, err := vision.Decode(req.Image)
	if err != nil {
		return "", nil, wrapError(KindValidation, StageValidating, err, "invalid image")
	}
	return name, img, nil
}

func (r *Registrar) qualityGate(c face.Candidate) error {
	if conf := c.Detection.Confidence; conf < r.policy.MinConfidence {
		return &Error{
			Kind:      KindQuality,
			Stage:     StageQualityGate,
			Message:   fmt.Sprintf("face confidence %.2f is below the minimum %.2f", conf, r.policy.MinConfidence),
			Measured:  conf,
			Threshold: r.policy.MinConfidence,
		}
	}
	if side := min(c.Crop.Dx(), c.Crop.Dy()); side < r.policy.MinFaceSize {
		return &Error{
			Kind:      KindQuality,
			Stage:     StageQualityGate,
			Message:   fmt.Sprintf("face size %dpx is below the minimum %dpx", side, r.policy.MinFaceSize),
			Measured:  float64(side),
			Threshold: float64(r.policy.MinFaceSize),
		}
	}
	return nil
}

func (r *Registrar) checkSuppliedIdentifier(ctx context.Context, id string) error {
	taken, err := r.ids.Exists(ctx, id)
	if err != nil {
		return wrapError(KindPersistence, StageIdentifierResolution, err, "check identifier")
	}
	if taken {
		return &Error{
			Kind:       KindDuplicateIdentifier,
			Stage:      StageIdentifierResolution,
			Message:    fmt.Sprintf("identifier %s is already in use", id),
			Identifier: id,
		}
	}
	return nil
}

func (r *Registrar) uniquenessGate(ctx context.Context, embedding []float32) error {
	done := observeStage(StageUniquenessGate)
	defer done()

	stored, err := r.deps.Store.All(ctx)
	if err != nil {
		return wrapError(KindPersistence, StageUniquenessGate, err, "load stored embeddings")
	}

	res, err := r.matcher.Match(embedding, embeddings(stored), r.policy.UniquenessThreshold)
	if err != nil {
		return wrapError(KindSystem, StageUniquenessGate, err, "compare embeddings")
	}
	best, ok := res.Best()
	if !ok {
		return nil
	}

	existing := stored[best.Index]
	return &Error{
		Kind:  KindDuplicateFace,
		Stage: StageUniquenessGate,
		Message: fmt.Sprintf("face is already registered as %s (%s): similarity %.3f reaches the uniqueness threshold %.2f",
			existing.Identifier, existing.DisplayName, best.Similarity, r.policy.UniquenessThreshold),
		Identifier:  existing.Identifier,
		DisplayName: existing.DisplayName,
		Measured:    best.Similarity,
		Threshold:   r.policy.UniquenessThreshold,
	}
}

// persistWithRetry resolves the identifier and persists. A generated
// identifier claimed concurrently by another writer is regenerated.
func (r *Registrar) persistWithRetry(ctx context.Context, supplied, name string, crop image.Image, embedding []float32) (*models.Identity, error) {
	attempts := max(1, r.policy.MaxIDAttempts)
	for attempt := 1; ; attempt++ {
		if err := checkContext(ctx, StageIdentifierResolution); err != nil {
			return nil, err
		}

		id := supplied
		if id == "" {
			var err error
			id, err = r.ids.Next(ctx)
			if err != nil {
				kind := KindPersistence
				if errors.Is(err, ErrSequenceExhausted) {
					kind = KindSystem
				}
				return nil, wrapError(kind, StageIdentifierResolution, err, "generate identifier")
			}
		}

		identity, err := r.persist(ctx, id, name, crop, embedding)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, storage.ErrIdentifierExists) {
			return nil, wrapError(KindPersistence, StagePersisting, err, "persist identity")
		}
		if supplied != "" {
			return nil, &Error{
				Kind:       KindDuplicateIdentifier,
				Stage:      StagePersisting,
				Message:    fmt.Sprintf("identifier %s is already in use", id),
				Identifier: id,
				Err:        err,
			}
		}
		if attempt >= attempts {
			return nil, wrapError(KindPersistence, StagePersisting, err, "persist identity after %d identifier attempts", attempt)
		}
		slog.Warn("generated identifier claimed concurrently, regenerating", "identifier", id, "attempt", attempt)
	}
}

// persist writes the image and embedding assets, then the row. On any
// failure the assets written so far are removed.
func (r *Registrar) persist(ctx context.Context, id, name string, crop image.Image, embedding []float32) (*models.Identity, error) {
	done := observeStage(StagePersisting)
	defer done()

	jpegData, err := vision.EncodeJPEG(crop, faceJPEGQuality)
	if err != nil {
		return nil, err
	}

	suffix := uuid.NewString()
	identity := &models.Identity{
		Identifier:   id,
		DisplayName:  name,
		Embedding:    embedding,
		ImageRef:     fmt.Sprintf("%s%s/%s.jpg", storage.FacesPrefix, id, suffix),
		EmbeddingRef: fmt.Sprintf("%s%s/%s.f32", storage.EmbeddingsPrefix, id, suffix),
	}

	var written []string
	if err := r.deps.Assets.Put(ctx, identity.ImageRef, jpegData, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("write face image: %w", err)
	}
	written = append(written, identity.ImageRef)

	if err := r.deps.Assets.Put(ctx, identity.EmbeddingRef, storage.EncodeEmbedding(embedding), storage.EmbeddingContentType); err != nil {
		r.rollback(ctx, id, written)
		return nil, fmt.Errorf("write embedding: %w", err)
	}
	written = append(written, identity.EmbeddingRef)

	if err := ctx.Err(); err != nil {
		r.rollback(ctx, id, written)
		return nil, err
	}
	if err := r.deps.Store.Insert(ctx, identity); err != nil {
		r.rollback(ctx, id, written)
		return nil, err
	}
	return identity, nil
}

// rollback deletes assets of a registration that did not commit. It runs
// detached from ctx so a cancelled request still cleans up.
func (r *Registrar) rollback(ctx context.Context, id string, refs []string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var orphans []string
	for _, ref := range refs {
		if err := r.deps.Assets.Delete(cleanupCtx, ref); err != nil {
			slog.Warn("rollback asset", "ref", ref, "error", err)
			orphans = append(orphans, ref)
		}
	}
	reportOrphans(cleanupCtx, r.deps.Events, id, "registration rollback failed", orphans)
}

func checkContext(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return wrapError(KindSystem, stage, err, "registration cancelled")
	}
	return nil
}
