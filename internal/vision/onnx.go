package vision

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceid/internal/config"
)

// Models owns the ONNX Runtime environment and the loaded sessions.
// Segmenter is nil unless a segmenter model is configured.
type Models struct {
	Detector  *RetinaFace
	Encoder   *ArcFace
	Segmenter *MODNet
}

// LoadONNX initializes ONNX Runtime and loads the configured models.
// The caller must Close the result.
func LoadONNX(cfg config.VisionConfig) (*Models, error) {
	libPath := cfg.RuntimeLibrary
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx runtime: %w", err)
	}

	m := &Models{}
	detPath := filepath.Join(cfg.ModelsDir, cfg.DetectorModel)
	slog.Info("loading detection model", "path", detPath)
	det, err := NewRetinaFace(detPath, float32(cfg.DetectionThreshold), cfg.DetectionSize, nil)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("load detector: %w", err)
	}
	m.Detector = det

	embPath := filepath.Join(cfg.ModelsDir, cfg.EmbedderModel)
	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewArcFace(embPath, cfg.EmbeddingDim, nil)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	m.Encoder = emb

	if cfg.SegmenterModel != "" {
		segPath := filepath.Join(cfg.ModelsDir, cfg.SegmenterModel)
		slog.Info("loading segmentation model", "path", segPath)
		seg, err := NewMODNet(segPath, nil)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("load segmenter: %w", err)
		}
		m.Segmenter = seg
	}

	slog.Info("vision models ready", "embedding_dim", cfg.EmbeddingDim, "segmentation", m.Segmenter != nil)
	return m, nil
}

// SegmenterOrNil returns the segmenter as an interface value that is nil
// when no segmentation model was loaded.
func (m *Models) SegmenterOrNil() Segmenter {
	if m.Segmenter == nil {
		return nil
	}
	return m.Segmenter
}

func (m *Models) Close() {
	if m.Detector != nil {
		m.Detector.Close()
	}
	if m.Encoder != nil {
		m.Encoder.Close()
	}
	if m.Segmenter != nil {
		m.Segmenter.Close()
	}
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			slog.Warn("destroy onnx runtime", "error", err)
		}
	}
}

// defaultLibPath returns the ONNX Runtime shared library name for the platform.
func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
