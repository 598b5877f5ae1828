package vision

import (
	"context"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/face"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

// RetinaFace runs the det_10g face detector through ONNX Runtime.
// The session reuses bound tensors, so Detect calls are serialized.
type RetinaFace struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	nmsIoU        float64
	inputSize     int
}

var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// NewRetinaFace loads the detector. size is the square model input edge
// (640 for det_10g); opts may be nil.
func NewRetinaFace(modelPath string, threshold float32, size int, opts *ort.SessionOptions) (*RetinaFace, error) {
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g emits scores then bbox distances per stride, without a batch dimension.
	// Landmark outputs are not requested.
	scoreNames := []string{"448", "471", "494"}
	boxNames := []string{"451", "474", "497"}

	var (
		outputNames   []string
		outputTensors []*ort.Tensor[float32]
		outputValues  []ort.Value
	)
	cleanup := func() {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
	}

	add := func(name string, shape ort.Shape) error {
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			return fmt.Errorf("create output tensor %s: %w", name, err)
		}
		outputNames = append(outputNames, name)
		outputTensors = append(outputTensors, t)
		outputValues = append(outputValues, t)
		return nil
	}
	for i, stride := range strides {
		n := int64((size / stride) * (size / stride) * anchorsPerStride)
		if err := add(scoreNames[i], ort.NewShape(n, 1)); err != nil {
			cleanup()
			return nil, err
		}
	}
	for i, stride := range strides {
		n := int64((size / stride) * (size / stride) * anchorsPerStride)
		if err := add(boxNames[i], ort.NewShape(n, 4)); err != nil {
			cleanup()
			return nil, err
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &RetinaFace{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		nmsIoU:        0.4,
		inputSize:     size,
	}, nil
}

func (d *RetinaFace) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := toCHW(img, d.inputSize, d.inputSize, 127.5, 128.0)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), input)

	start := time.Now()
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	return nms(d.decode(img.Bounds()), d.nmsIoU), nil
}

// decode turns anchor-relative RetinaFace outputs into boxes in image coordinates.
func (d *RetinaFace) decode(bounds image.Rectangle) []models.Detection {
	var detections []models.Detection

	scaleW := float64(bounds.Dx()) / float64(d.inputSize)
	scaleH := float64(bounds.Dy()) / float64(d.inputSize)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+len(strides)].GetData()
		fm := d.inputSize / stride
		st := float64(stride)

		idx := 0
		for cy := 0; cy < fm; cy++ {
			for cx := 0; cx < fm; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if score := scores[idx]; score >= d.threshold {
						ax := float64(cx) * st
						ay := float64(cy) * st
						box := models.Box{
							X1: clampF((ax-float64(boxes[idx*4+0])*st)*scaleW, 0, float64(bounds.Dx())) + float64(bounds.Min.X),
							Y1: clampF((ay-float64(boxes[idx*4+1])*st)*scaleH, 0, float64(bounds.Dy())) + float64(bounds.Min.Y),
							X2: clampF((ax+float64(boxes[idx*4+2])*st)*scaleW, 0, float64(bounds.Dx())) + float64(bounds.Min.X),
							Y2: clampF((ay+float64(boxes[idx*4+3])*st)*scaleH, 0, float64(bounds.Dy())) + float64(bounds.Min.Y),
						}
						detections = append(detections, models.Detection{Box: box, Confidence: float64(score)})
					}
					idx++
				}
			}
		}
	}
	return detections
}

func (d *RetinaFace) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs Non-Maximum Suppression, keeping the most confident of
// overlapping detections.
func nms(detections []models.Detection, iouThreshold float64) []models.Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}
	for i := range detections {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if keep[j] && face.IoU(detections[i].Box, detections[j].Box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]models.Detection, 0, len(detections))
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
