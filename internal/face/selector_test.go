package face

import (
	"image"
	"math"
	"testing"

	"github.com/your-org/faceid/internal/models"
)

func det(x1, y1, x2, y2, conf float64) models.Detection {
	return models.Detection{Box: models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: conf}
}

func TestSelectEmpty(t *testing.T) {
	got := NewSelector().Select(nil, image.Rect(0, 0, 100, 100), nil)
	if len(got) != 0 {
		t.Errorf("Select(nil) returned %d candidates, want 0", len(got))
	}
}

func TestSelectWithoutTargetOrdersByConfidence(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 50, 50, 0.70),
		det(100, 100, 200, 200, 0.95),
		det(300, 300, 350, 350, 0.80),
	}

	got := NewSelector().Select(dets, image.Rect(0, 0, 640, 480), nil)
	wantOrder := []int{1, 2, 0}
	for i, idx := range wantOrder {
		if got[i].Index != idx {
			t.Fatalf("position %d: Index = %d, want %d", i, got[i].Index, idx)
		}
		if want := 0.7 * dets[idx].Confidence; math.Abs(got[i].Score-want) > 1e-9 {
			t.Errorf("position %d: Score = %v, want %v", i, got[i].Score, want)
		}
	}
}

func TestSelectTiesKeepDetectorOrder(t *testing.T) {
	dets := []models.Detection{
		det(0, 0, 50, 50, 0.9),
		det(100, 0, 150, 50, 0.9),
		det(200, 0, 250, 50, 0.9),
	}

	got := NewSelector().Select(dets, image.Rect(0, 0, 640, 480), nil)
	for i := range got {
		if got[i].Index != i {
			t.Errorf("position %d: Index = %d, want %d", i, got[i].Index, i)
		}
	}
}

func TestSelectTargetRegionWins(t *testing.T) {
	// The second face is slightly less confident but sits on the target.
	dets := []models.Detection{
		det(0, 0, 100, 100, 0.95),
		det(400, 300, 500, 400, 0.90),
	}
	target := models.Box{X1: 400, Y1: 300, X2: 500, Y2: 400}

	got := NewSelector().Select(dets, image.Rect(0, 0, 640, 480), &target)
	if got[0].Index != 1 {
		t.Fatalf("top Index = %d, want 1", got[0].Index)
	}
	if math.Abs(got[0].RegionScore-1.0) > 1e-9 {
		t.Errorf("RegionScore = %v, want 1 for identical box", got[0].RegionScore)
	}
	if got[1].RegionScore <= 0 || got[1].RegionScore >= 1 {
		t.Errorf("non-overlapping RegionScore = %v, want proximity score in (0,1)", got[1].RegionScore)
	}
}

func TestSelectProximityScore(t *testing.T) {
	bounds := image.Rect(0, 0, 300, 400) // diagonal 500
	box := models.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	target := models.Box{X1: 90, Y1: 0, X2: 100, Y2: 10} // centers 90 apart

	got := NewSelector().Select([]models.Detection{{Box: box, Confidence: 1}}, bounds, &target)
	want := 1 - 90.0/500.0
	if math.Abs(got[0].RegionScore-want) > 1e-9 {
		t.Errorf("RegionScore = %v, want %v", got[0].RegionScore, want)
	}
	if math.Abs(got[0].Score-(0.7+0.3*want)) > 1e-9 {
		t.Errorf("Score = %v, want %v", got[0].Score, 0.7+0.3*want)
	}
}

func TestSelectCropsStayInsideImage(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	dets := []models.Detection{
		det(-20, -20, 60, 60, 0.9),
		det(150, 50, 260, 140, 0.9),
	}

	for _, c := range NewSelector().Select(dets, bounds, nil) {
		if !c.Crop.In(bounds) {
			t.Errorf("crop %v for detection %d is outside %v", c.Crop, c.Index, bounds)
		}
	}
}
