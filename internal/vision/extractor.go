package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/observability"
)

// ErrNotReady is returned by Extract before Load has succeeded.
var ErrNotReady = errors.New("extractor not ready")

// Descriptor is the primary face of a frame.
type Descriptor struct {
	Location  image.Rectangle
	Score     float32
	Embedding face.Embedding
}

type faceDetector interface {
	Detect(imgData []float32, origW, origH int) ([]Detection, error)
	InputSize() (int, int)
	Close()
}

type faceEmbedder interface {
	Extract(faceData []float32) ([]float32, error)
	InputSize() (int, int)
	Close()
}

// Extractor wraps the detector and embedder behind an explicit, idempotent
// Load. ONNX sessions bind fixed tensors, so Extract calls are serialised.
type Extractor struct {
	cfg  config.VisionConfig
	open func() (faceDetector, faceEmbedder, error)

	mu       sync.Mutex
	ready    atomic.Bool
	ownsEnv  bool
	detector faceDetector
	embedder faceEmbedder
}

// NewExtractor returns an unloaded extractor for the configured models.
func NewExtractor(cfg config.VisionConfig) *Extractor {
	x := &Extractor{cfg: cfg}
	x.open = x.openModels
	return x
}

// Load initialises ONNX Runtime and the model sessions. Once it has succeeded
// further calls return nil without doing anything; a failed Load may be retried.
func (x *Extractor) Load() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.ready.Load() {
		return nil
	}

	det, emb, err := x.open()
	if err != nil {
		return err
	}
	x.detector, x.embedder = det, emb
	x.ready.Store(true)
	slog.Info("face extractor ready")
	return nil
}

// Ready reports whether Load has completed.
func (x *Extractor) Ready() bool {
	return x.ready.Load()
}

func (x *Extractor) openModels() (faceDetector, faceEmbedder, error) {
	if !ort.IsInitialized() {
		lib := x.cfg.LibraryPath
		if lib == "" {
			lib = defaultLibraryPath()
		}
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, nil, fmt.Errorf("init onnx runtime: %w", err)
		}
		x.ownsEnv = true
	}

	detPath := filepath.Join(x.cfg.ModelsDir, x.cfg.DetectorModel)
	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(x.cfg.DetectionThreshold))
	if err != nil {
		return nil, nil, fmt.Errorf("load detector: %w", err)
	}

	embPath := filepath.Join(x.cfg.ModelsDir, x.cfg.EmbedderModel)
	slog.Info("loading embedding model", "path", embPath, "dim", x.cfg.EmbeddingDim)
	emb, err := NewEmbedder(EmbedderOptions{
		ModelPath:  embPath,
		InputName:  x.cfg.EmbedderInput,
		OutputName: x.cfg.EmbedderOutput,
		InputSize:  x.cfg.EmbedderInputSize,
		Dim:        x.cfg.EmbeddingDim,
		Normalize:  x.cfg.NormalizeEmbeddings,
	})
	if err != nil {
		det.Close()
		return nil, nil, fmt.Errorf("load embedder: %w", err)
	}

	return det, emb, nil
}

// Extract detects the most prominent face in img and returns its descriptor,
// or nil when no face is found.
func (x *Extractor) Extract(ctx context.Context, img image.Image) (*Descriptor, error) {
	if !x.ready.Load() {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Close may have run while we waited for the lock.
	if !x.ready.Load() || x.detector == nil || x.embedder == nil {
		return nil, ErrNotReady
	}

	bounds := img.Bounds()
	dw, dh := x.detector.InputSize()

	start := time.Now()
	dets, err := x.detector.Detect(toCHW(img, dw, dh, detMean, detStd), bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	best, ok := primary(dets)
	if !ok {
		return nil, nil
	}
	// detector coordinates are relative to the image origin
	loc := best.Box.Add(bounds.Min)

	crop := cropFace(img, loc)
	if crop == nil {
		return nil, nil
	}

	ew, eh := x.embedder.InputSize()
	start = time.Now()
	vec, err := x.embedder.Extract(toCHW(crop, ew, eh, embMean, embStd))
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	return &Descriptor{
		Location:  loc,
		Score:     best.Confidence,
		Embedding: face.Embedding(vec),
	}, nil
}

// Close releases the model sessions and, if Load created it, the ONNX environment.
func (x *Extractor) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closeLocked()
}

func (x *Extractor) closeLocked() {
	x.ready.Store(false)
	if x.detector != nil {
		x.detector.Close()
		x.detector = nil
	}
	if x.embedder != nil {
		x.embedder.Close()
		x.embedder = nil
	}
	if x.ownsEnv {
		_ = ort.DestroyEnvironment()
		x.ownsEnv = false
	}
}

// primary picks the highest-confidence detection; ties go to the larger box.
func primary(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence || (d.Confidence == best.Confidence && d.Area() > best.Area()) {
			best = d
		}
	}
	return best, true
}

// defaultLibraryPath returns the ONNX Runtime shared library name for this OS.
func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
