package vision

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/your-org/faceid/internal/models"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(4, 3, color.White)); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	img, format, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("Decode() = %s %v", format, img.Bounds())
	}

	for _, data := range [][]byte{nil, []byte("not an image")} {
		if _, _, err := Decode(data); err == nil {
			t.Errorf("Decode(%q) error = nil", data)
		}
	}
}

func TestCrop(t *testing.T) {
	img := solid(100, 80, color.RGBA{R: 200, A: 255})
	img.Set(10, 20, color.RGBA{G: 255, A: 255})

	c := Crop(img, image.Rect(10, 20, 40, 60))
	if c.Bounds() != image.Rect(0, 0, 30, 40) {
		t.Fatalf("Crop bounds = %v", c.Bounds())
	}
	if r, g, _, _ := c.At(0, 0).RGBA(); r != 0 || g>>8 != 255 {
		t.Errorf("Crop origin pixel = %v, want green", c.At(0, 0))
	}
	if Crop(img, image.Rect(200, 200, 300, 300)) != nil {
		t.Error("Crop outside bounds returned an image")
	}
}

func TestToCHWNormalizes(t *testing.T) {
	data := toCHW(solid(8, 8, color.RGBA{R: 255, G: 127, B: 0, A: 255}), 4, 4, 127.5, 127.5)
	if len(data) != 3*4*4 {
		t.Fatalf("len = %d, want 48", len(data))
	}
	if math.Abs(float64(data[0])-1) > 0.01 {
		t.Errorf("R plane = %v, want about 1", data[0])
	}
	if data[16] > 0 || data[16] < -0.01 {
		t.Errorf("G plane = %v, want about 0", data[16])
	}
	if math.Abs(float64(data[32])+1) > 0.01 {
		t.Errorf("B plane = %v, want about -1", data[32])
	}
}

func TestApplyMatte(t *testing.T) {
	img := solid(4, 4, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	matte := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range matte.Pix {
		matte.Pix[i] = 255
	}

	out := ApplyMatte(img, matte)
	if r, _, _, _ := out.At(1, 1).RGBA(); r>>8 < 198 || r>>8 > 200 {
		t.Errorf("opaque matte changed red to %d", r>>8)
	}

	empty := image.NewGray(image.Rect(0, 0, 2, 2))
	out = ApplyMatte(img, empty)
	if r, g, b, _ := out.At(2, 2).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Errorf("zero matte left color %v", out.At(2, 2))
	}
}

func TestNMS(t *testing.T) {
	dets := []models.Detection{
		{Box: models.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.8},
		{Box: models.Box{X1: 5, Y1: 5, X2: 105, Y2: 105}, Confidence: 0.9},
		{Box: models.Box{X1: 300, Y1: 300, X2: 400, Y2: 400}, Confidence: 0.7},
	}

	got := nms(dets, 0.4)
	if len(got) != 2 {
		t.Fatalf("nms kept %d, want 2", len(got))
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.7 {
		t.Errorf("nms kept %+v", got)
	}
}

// Compile-time checks that the ONNX models satisfy the capability interfaces.
var (
	_ Detector  = (*RetinaFace)(nil)
	_ Encoder   = (*ArcFace)(nil)
	_ Segmenter = (*MODNet)(nil)
)

func TestEmbedRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&ArcFace{}).Embed(ctx, solid(2, 2, color.White)); err == nil {
		t.Error("Embed() with cancelled context error = nil")
	}
}
