package vision

import (
	"context"
	"image"

	"github.com/your-org/faceid/internal/models"
)

// Detector finds faces in a decoded image. Boxes are in image pixel coordinates.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// Encoder maps a face crop to a fixed-length embedding.
type Encoder interface {
	Embed(ctx context.Context, face image.Image) ([]float32, error)
	Dim() int
}

// Segmenter isolates the face inside a crop, e.g. by masking background.
type Segmenter interface {
	Segment(ctx context.Context, face image.Image) (image.Image, error)
}
