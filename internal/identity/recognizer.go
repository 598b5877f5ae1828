package identity

import (
	"context"
	"log/slog"

	"github.com/your-org/faceid/internal/face"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/vision"
)

// Recognition is the outcome of matching every face in one image against
// the enrolled identities.
type Recognition struct {
	TotalCount            int                      `json:"total_count"`
	MatchedCount          int                      `json:"matched_count"`
	UnmatchedCountInStore int                      `json:"unmatched_count_in_store"`
	StoreSize             int                      `json:"store_size"`
	Matches               []models.MatchDetail     `json:"matches"`
	MatchedIdentities     []models.IdentitySummary `json:"matched_identities"`
	UnmatchedIdentities   []models.IdentitySummary `json:"unmatched_identities_in_store"`
}

type Recognizer struct {
	deps      Deps
	selector  *face.Selector
	matcher   *face.Matcher
	threshold float64
}

func NewRecognizer(deps Deps, policy Policy) *Recognizer {
	return &Recognizer{
		deps:      deps,
		selector:  face.NewSelector(),
		matcher:   face.NewMatcher(deps.Encoder.Dim()),
		threshold: policy.RecognitionThreshold,
	}
}

// Recognize detects every face in image and matches each against the store.
// A face whose embedding cannot be computed is reported with its error and
// does not abort the others.
func (r *Recognizer) Recognize(ctx context.Context, data []byte) (rec *Recognition, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err).String()
		}
		observability.Recognitions.WithLabelValues(outcome).Inc()
	}()

	img, _, err := vision.Decode(data)
	if err != nil {
		return nil, wrapError(KindValidation, StageRecognizing, err, "invalid image")
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
	observability.FacesDetected.WithLabelValues("recognize").Add(float64(len(detections)))

	stored, err := r.deps.Store.All(ctx)
	if err != nil {
		return nil, wrapError(KindPersistence, StageRecognizing, err, "load stored embeddings")
	}
	candidates := embeddings(stored)

	rec = &Recognition{
		TotalCount: len(detections),
		StoreSize:  len(stored),
		Matches:    make([]models.MatchDetail, 0, len(detections)),
	}
	matched := make(map[string]bool)

	// Matches follow selector rank; FaceIndex points back into the detector output.
	for _, c := range r.selector.Select(detections, img.Bounds(), nil) {
		if err := ctx.Err(); err != nil {
			return nil, wrapError(KindSystem, StageRecognizing, err, "recognition cancelled")
		}

		detail := models.MatchDetail{
			FaceIndex:  c.Index,
			Box:        c.Detection.Box,
			Confidence: c.Detection.Confidence,
		}
		if len(stored) == 0 {
			rec.Matches = append(rec.Matches, detail)
			continue
		}

		_, embedding, err := r.deps.extract(ctx, img, c.Crop)
		if err != nil {
			slog.Warn("face embedding failed", "face", c.Index, "error", err)
			detail.Error = err.Error()
			rec.Matches = append(rec.Matches, detail)
			continue
		}

		res, err := r.matcher.Match(embedding, candidates, r.threshold)
		if err != nil {
			detail.Error = err.Error()
			rec.Matches = append(rec.Matches, detail)
			continue
		}
		if res.ClosestIndex >= 0 {
			detail.ClosestSimilarity = res.Closest
		}
		if best, ok := res.Best(); ok {
			hit := stored[best.Index]
			id := hit.Identifier
			detail.MatchedIdentifier = &id
			detail.MatchedName = hit.DisplayName
			detail.Similarity = best.Similarity
			detail.Level = face.Level(best.Similarity)
			observability.FacesMatched.Inc()

			if !matched[id] {
				matched[id] = true
				rec.MatchedIdentities = append(rec.MatchedIdentities, models.IdentitySummary{
					Identifier:  id,
					DisplayName: hit.DisplayName,
				})
			}
		}
		slog.Debug("face compared", "face", c.Index, "closest", detail.ClosestSimilarity, "matched", detail.MatchedName)
		rec.Matches = append(rec.Matches, detail)
	}

	for _, s := range stored {
		if !matched[s.Identifier] {
			rec.UnmatchedIdentities = append(rec.UnmatchedIdentities, models.IdentitySummary{
				Identifier:  s.Identifier,
				DisplayName: s.DisplayName,
			})
		}
	}
	rec.MatchedCount = len(rec.MatchedIdentities)
	rec.UnmatchedCountInStore = len(rec.UnmatchedIdentities)

	slog.Info("recognition complete", "faces", rec.TotalCount, "matched", rec.MatchedCount, "store", rec.StoreSize)
	return rec, nil
}
