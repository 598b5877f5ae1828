package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/your-org/faceid/internal/observability"
)

// MODNet predicts a portrait matte and multiplies it into the crop, blacking
// out background pixels before embedding.
type MODNet struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
}

func NewMODNet(modelPath string, opts *ort.SessionOptions) (*MODNet, error) {
	const size = 512

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create segmenter session: %w", err)
	}

	return &MODNet{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         size,
	}, nil
}

func (m *MODNet) Segment(ctx context.Context, faceImg image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if faceImg == nil || faceImg.Bounds().Empty() {
		return nil, fmt.Errorf("segment: empty face crop")
	}

	input := toCHW(faceImg, m.size, m.size, 127.5, 127.5)

	m.mu.Lock()
	copy(m.inputTensor.GetData(), input)
	start := time.Now()
	err := m.session.Run()
	var matte *image.Gray
	if err == nil {
		matte = image.NewGray(image.Rect(0, 0, m.size, m.size))
		for i, v := range m.outputTensor.GetData() {
			matte.Pix[i] = uint8(clampF(float64(v), 0, 1) * 255)
		}
	}
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run segmentation: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("segment").Observe(time.Since(start).Seconds())

	return ApplyMatte(faceImg, matte), nil
}

// ApplyMatte scales matte to img and multiplies every color channel by it.
func ApplyMatte(img image.Image, matte *image.Gray) image.Image {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.BiLinear.Scale(mask, mask.Bounds(), matte, matte.Bounds(), draw.Src, nil)

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			a := uint32(mask.GrayAt(x, y).Y)
			out.SetRGBA(x, y, color.RGBA{
				R: uint8((r >> 8) * a / 255),
				G: uint8((g >> 8) * a / 255),
				B: uint8((bl >> 8) * a / 255),
				A: 255,
			})
		}
	}
	return out
}

func (m *MODNet) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
}
