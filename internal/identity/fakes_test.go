package identity

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/storage/mock"
	"github.com/your-org/faceid/internal/vision"
)

const panelSize = 200

var (
	red     = color.RGBA{R: 255, A: 255}
	green   = color.RGBA{G: 255, A: 255}
	blue    = color.RGBA{B: 255, A: 255}
	nearRed = color.RGBA{R: 240, G: 20, B: 10, A: 255}
	black   = color.RGBA{A: 255}
)

// panels renders one 200x200 square per color, left to right, as PNG.
func panels(t *testing.T, colors ...color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, panelSize*len(colors), panelSize))
	for i, c := range colors {
		for y := 0; y < panelSize; y++ {
			for x := i * panelSize; x < (i+1)*panelSize; x++ {
				img.SetRGBA(x, y, c)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// faceIn returns a detection centered in panel i.
func faceIn(i int, conf float64) models.Detection {
	x := float64(i * panelSize)
	return models.Detection{
		Box:        models.Box{X1: x + 30, Y1: 30, X2: x + 170, Y2: 170},
		Confidence: conf,
	}
}

// fakeDetector returns its configured detections for any image.
type fakeDetector struct {
	mu   sync.Mutex
	dets []models.Detection
	err  error
}

func (d *fakeDetector) set(dets ...models.Detection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dets = dets
}

func (d *fakeDetector) Detect(context.Context, image.Image) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return append([]models.Detection(nil), d.dets...), nil
}

// colorEncoder embeds a face as its mean RGB. Black faces have no
// embedding and fail, which stands in for an encoder error.
type colorEncoder struct{}

func (colorEncoder) Dim() int { return 3 }

func (colorEncoder) Embed(_ context.Context, face image.Image) ([]float32, error) {
	b := face.Bounds()
	var r, g, bl float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := face.At(x, y).RGBA()
			r += float64(cr >> 8)
			g += float64(cg >> 8)
			bl += float64(cb >> 8)
		}
	}
	n := float64(b.Dx() * b.Dy())
	if r+g+bl == 0 {
		return nil, errors.New("face crop carries no signal")
	}
	return []float32{float32(r / n), float32(g / n), float32(bl / n)}, nil
}

type failingSegmenter struct{}

func (failingSegmenter) Segment(context.Context, image.Image) (image.Image, error) {
	return nil, errors.New("matte model unavailable")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.IdentityEvent
}

func (p *recordingPublisher) PublishIdentityEvent(_ context.Context, ev models.IdentityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t models.IdentityEventType) []models.IdentityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.IdentityEvent
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// flakyAssets wraps an asset store and fails deletes of keys with failDelete
// as prefix.
type flakyAssets struct {
	storage.AssetStore
	failDelete string
}

func (a *flakyAssets) Delete(ctx context.Context, key string) error {
	if a.failDelete != "" && strings.HasPrefix(key, a.failDelete) {
		return errors.New("object store unavailable")
	}
	return a.AssetStore.Delete(ctx, key)
}

type harness struct {
	store      *mock.IdentityStore
	files      *storage.FileStore
	assets     storage.AssetStore
	events     *recordingPublisher
	detector   *fakeDetector
	ids        *Generator
	registrar  *Registrar
	recognizer *Recognizer
	maintainer *Maintainer
}

type harnessOption func(*harness, *Deps)

func withAssets(wrap func(storage.AssetStore) storage.AssetStore) harnessOption {
	return func(h *harness, d *Deps) {
		h.assets = wrap(h.files)
		d.Assets = h.assets
	}
}

func withSegmenter(s vision.Segmenter) harnessOption {
	return func(_ *harness, d *Deps) { d.Segmenter = s }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	h := &harness{
		store:    mock.NewIdentityStore(),
		files:    files,
		assets:   files,
		events:   &recordingPublisher{},
		detector: &fakeDetector{},
	}
	h.store.SetClock(fixedClock(testDay))

	deps := Deps{
		Detector: h.detector,
		Encoder:  colorEncoder{},
		Store:    h.store,
		Assets:   files,
		Events:   h.events,
	}
	for _, opt := range opts {
		opt(h, &deps)
	}

	h.ids = NewGenerator("USR", h.store, WithClock(fixedClock(testDay)))
	h.registrar = NewRegistrar(deps, h.ids, DefaultPolicy())
	h.recognizer = NewRecognizer(deps, DefaultPolicy())
	h.maintainer = NewMaintainer(h.store, h.assets, h.events)
	h.maintainer.now = fixedClock(testDay)
	return h
}

// enroll registers a single face of color c and fails the test on error.
func (h *harness) enroll(t *testing.T, name string, c color.RGBA) *Registration {
	t.Helper()
	h.detector.set(faceIn(0, 0.95))
	reg, err := h.registrar.Register(context.Background(), RegisterRequest{
		DisplayName: name,
		Image:       panels(t, c),
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	return reg
}

func assertKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want kind %s", want)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v (%T) is not an *Error", err, err)
	}
	if e.Kind != want {
		t.Fatalf("error kind = %s (%v), want %s", e.Kind, err, want)
	}
	return e
}
