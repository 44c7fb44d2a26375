package vision

import (
	"fmt"
	"math"

	ort "github.com/yalue/onnxruntime_go"
)

// EmbedderOptions describes the embedding model's tensors.
type EmbedderOptions struct {
	ModelPath  string
	InputName  string
	OutputName string
	InputSize  int // square input, e.g. 150 for dlib-style or 112 for ArcFace
	Dim        int
	Normalize  bool // L2-normalise the output vector
}

// Embedder extracts face descriptors from aligned face crops.
type Embedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	opts    EmbedderOptions
}

// NewEmbedder loads the embedding ONNX model.
func NewEmbedder(opts EmbedderOptions) (*Embedder, error) {
	if opts.InputSize <= 0 || opts.Dim <= 0 {
		return nil, fmt.Errorf("invalid embedder shape: input %d, dim %d", opts.InputSize, opts.Dim)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(opts.InputSize), int64(opts.InputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(opts.Dim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		opts:    opts,
	}, nil
}

// Extract runs the model on a CHW face crop and returns a fresh vector.
func (e *Embedder) Extract(faceData []float32) ([]float32, error) {
	copy(e.input.GetData(), faceData)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.opts.Dim)
	copy(embedding, e.output.GetData())

	if e.opts.Normalize {
		normalize(embedding)
	}
	return embedding, nil
}

// InputSize returns the expected face crop dimensions.
func (e *Embedder) InputSize() (int, int) {
	return e.opts.InputSize, e.opts.InputSize
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
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
