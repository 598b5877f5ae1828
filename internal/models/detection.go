package models

import "math"

// Box is an axis-aligned rectangle in image pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b Box) Width() float64  { return b.X2 - b.X1 }
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

func (b Box) Area() float64 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Valid reports whether the box has positive width and height and finite coordinates.
func (b Box) Valid() bool {
	for _, v := range []float64{b.X1, b.Y1, b.X2, b.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Detection is a single face found by a detector.
type Detection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// MatchDetail is the per-face outcome of a recognition request. FaceIndex is
// the face's position in the detector output. A nil MatchedIdentifier means
// no stored identity cleared the threshold.
type MatchDetail struct {
	FaceIndex         int     `json:"face_index"`
	Box               Box     `json:"box"`
	Confidence        float64 `json:"confidence"`
	MatchedIdentifier *string `json:"matched_identifier"`
	MatchedName       string  `json:"matched_name,omitempty"`
	Similarity        float64 `json:"similarity"`
	ClosestSimilarity float64 `json:"closest_similarity"`
	Level             string  `json:"level,omitempty"`
	Error             string  `json:"error,omitempty"`
}
