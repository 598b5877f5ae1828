package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/observability"
)

// ArcFace extracts L2-normalized face embeddings with the w600k_r50 model.
type ArcFace struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
}

func NewArcFace(modelPath string, embDim int, opts *ort.SessionOptions) (*ArcFace, error) {
	inputW, inputH := 112, 112

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(embDim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &ArcFace{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		embDim:       embDim,
	}, nil
}

func (e *ArcFace) Embed(ctx context.Context, faceImg image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if faceImg == nil || faceImg.Bounds().Empty() {
		return nil, fmt.Errorf("embed: empty face crop")
	}

	input := toCHW(faceImg, e.inputW, e.inputH, 127.5, 127.5)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)

	start := time.Now()
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	embedding := make([]float32, e.embDim)
	copy(embedding, e.outputTensor.GetData())
	normalize(embedding)
	return embedding, nil
}

func (e *ArcFace) Dim() int {
	return e.embDim
}

func (e *ArcFace) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalization in-place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
