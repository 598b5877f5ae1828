package identity

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

// Policy holds the decision thresholds shared by registration and recognition.
type Policy struct {
	RecognitionThreshold float64
	UniquenessThreshold  float64
	MinConfidence        float64
	MinFaceSize          int
	MaxIDAttempts        int
	Serialize            bool
}

func DefaultPolicy() Policy {
	return Policy{
		RecognitionThreshold: 0.6,
		UniquenessThreshold:  0.5,
		MinConfidence:        0.85,
		MinFaceSize:          100,
		MaxIDAttempts:        10,
		Serialize:            true,
	}
}

func PolicyFromConfig(cfg config.IdentityConfig) Policy {
	return Policy{
		RecognitionThreshold: cfg.RecognitionThreshold,
		UniquenessThreshold:  cfg.UniquenessThreshold,
		MinConfidence:        cfg.MinConfidence,
		MinFaceSize:          cfg.MinFaceSize,
		MaxIDAttempts:        cfg.MaxIDAttempts,
		Serialize:            cfg.Serialize(),
	}
}

var errEmptyCrop = errors.New("face region lies outside the image")

// Deps are the collaborators of the registrar and recognizer.
// Segmenter and Events are optional.
type Deps struct {
	Detector  vision.Detector
	Encoder   vision.Encoder
	Segmenter vision.Segmenter
	Store     storage.IdentityStore
	Assets    storage.AssetStore
	Events    EventPublisher
}

// extract crops rect out of img, segments it when a segmenter is available
// and returns the unsegmented crop with the embedding.
func (d Deps) extract(ctx context.Context, img image.Image, rect image.Rectangle) (image.Image, []float32, error) {
	crop := vision.Crop(img, rect)
	if crop == nil {
		return nil, nil, errEmptyCrop
	}

	input := crop
	if d.Segmenter != nil {
		seg, err := d.Segmenter.Segment(ctx, crop)
		if err != nil {
			slog.Warn("segmentation failed, embedding unsegmented crop", "error", err)
		} else {
			input = seg
		}
	}

	embedding, err := d.Encoder.Embed(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return crop, embedding, nil
}

func embeddings(identities []models.Identity) [][]float32 {
	out := make([][]float32, len(identities))
	for i := range identities {
		out[i] = identities[i].Embedding
	}
	return out
}
