package face

import (
	"image"
	"math"
	"sort"

	"github.com/your-org/faceid/internal/models"
)

// Default scoring weights and crop padding.
const (
	DefaultConfidenceWeight = 0.7
	DefaultRegionWeight     = 0.3
	DefaultCropPadding      = 0.1
)

// Candidate is a ranked detection with the crop rectangle used for embedding.
type Candidate struct {
	// Index is the position of the detection in the detector output.
	Index       int
	Detection   models.Detection
	Crop        image.Rectangle
	RegionScore float64
	Score       float64
}

// Selector ranks detections so the caller can take the top one as "the" face.
type Selector struct {
	ConfidenceWeight float64
	RegionWeight     float64
	CropPadding      float64
}

func NewSelector() *Selector {
	return &Selector{
		ConfidenceWeight: DefaultConfidenceWeight,
		RegionWeight:     DefaultRegionWeight,
		CropPadding:      DefaultCropPadding,
	}
}

// Select scores every detection and returns candidates ordered by descending
// score. Ties keep detector order. target may be nil, in which case only the
// confidence term contributes.
func (s *Selector) Select(detections []models.Detection, bounds image.Rectangle, target *models.Box) []Candidate {
	if len(detections) == 0 {
		return nil
	}

	diag := math.Hypot(float64(bounds.Dx()), float64(bounds.Dy()))
	candidates := make([]Candidate, 0, len(detections))
	for i, det := range detections {
		c := Candidate{
			Index:     i,
			Detection: det,
			Crop:      CropRect(det.Box, bounds, s.CropPadding),
		}
		if target != nil {
			c.RegionScore = regionScore(det.Box, *target, diag)
		}
		c.Score = s.ConfidenceWeight*det.Confidence + s.RegionWeight*c.RegionScore
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// regionScore is the IoU when the boxes overlap, otherwise a proximity score
// that decays with center distance relative to the image diagonal.
func regionScore(box, target models.Box, diag float64) float64 {
	if iou := IoU(box, target); iou > 0 {
		return iou
	}
	if diag <= 0 {
		return 0
	}
	return max(0, 1-CenterDistance(box, target)/diag)
}
