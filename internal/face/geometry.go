package face

import (
	"image"
	"math"

	"github.com/your-org/faceid/internal/models"
)

// IoU calculates Intersection over Union between two boxes.
func IoU(a, b models.Box) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// CenterDistance returns the Euclidean distance between box centers.
func CenterDistance(a, b models.Box) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}

// CropRect clamps box to bounds, pads each side by ratio of the clamped
// width/height and clamps again. The result may be empty when the box lies
// entirely outside the image.
func CropRect(box models.Box, bounds image.Rectangle, ratio float64) image.Rectangle {
	x1 := clampInt(int(box.X1), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(box.Y1), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(box.X2), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(box.Y2), bounds.Min.Y, bounds.Max.Y)
	if x2 <= x1 || y2 <= y1 {
		return image.Rectangle{}
	}

	padX := int(float64(x2-x1) * ratio)
	padY := int(float64(y2-y1) * ratio)

	return image.Rect(
		max(bounds.Min.X, x1-padX),
		max(bounds.Min.Y, y1-padY),
		min(bounds.Max.X, x2+padX),
		min(bounds.Max.Y, y2+padY),
	)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
