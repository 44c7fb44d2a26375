package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face found by the detector, in source-image pixels.
type Detection struct {
	Box        image.Rectangle
	Confidence float32
}

// Area returns the box area in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
type Detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    []*ort.Tensor[float32] // one per stride
	boxes     []*ort.Tensor[float32]
	threshold float32
	inputW    int
	inputH    int
}

const (
	detInputSize    = 640
	anchorsPerCell  = 2
	detNMSThreshold = 0.4
	detInputName    = "input.1"
)

// det_10g output names per stride. Shapes carry no batch dimension:
// scores [N,1], boxes [N,4] with N = (640/stride)^2 * 2.
var detStrides = []struct {
	stride int
	score  string
	box    string
}{
	{8, "448", "451"},
	{16, "471", "474"},
	{32, "494", "497"},
}

// NewDetector loads the RetinaFace ONNX model.
func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	d := &Detector{threshold: threshold, inputW: detInputSize, inputH: detInputSize}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var names []string
	var outputs []ort.Value
	for _, s := range detStrides {
		n := int64(anchorCount(detInputSize, s.stride))

		st, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor (stride %d): %w", s.stride, err)
		}
		d.scores = append(d.scores, st)

		bt, err := ort.NewEmptyTensor[float32](ort.NewShape(n, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create box tensor (stride %d): %w", s.stride, err)
		}
		d.boxes = append(d.boxes, bt)
	}
	for i, s := range detStrides {
		names = append(names, s.score)
		outputs = append(outputs, d.scores[i])
	}
	for i, s := range detStrides {
		names = append(names, s.box)
		outputs = append(outputs, d.boxes[i])
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{detInputName},
		names,
		[]ort.Value{d.input},
		outputs,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return d, nil
}

// Detect runs face detection on a preprocessed CHW image and returns
// detections scaled to origW x origH, highest confidence first.
func (d *Detector) Detect(imgData []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), imgData)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	var dets []Detection
	for i, s := range detStrides {
		dets = append(dets, decodeStride(
			d.scores[i].GetData(), d.boxes[i].GetData(),
			s.stride, d.inputW, d.inputH,
			scaleW, scaleH, origW, origH, d.threshold,
		)...)
	}

	return nms(dets, detNMSThreshold), nil
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, t := range d.scores {
		t.Destroy()
	}
	for _, t := range d.boxes {
		t.Destroy()
	}
}

func anchorCount(inputSize, stride int) int {
	fm := inputSize / stride
	return fm * fm * anchorsPerCell
}

// decodeStride turns the anchor-based outputs of one stride into detections.
// Box outputs are distances from the anchor centre to each edge in stride units.
func decodeStride(scores, boxes []float32, stride, inputW, inputH int, scaleW, scaleH float32, origW, origH int, threshold float32) []Detection {
	var out []Detection
	fmW, fmH := inputW/stride, inputH/stride
	st := float32(stride)

	idx := 0
	for cy := 0; cy < fmH; cy++ {
		for cx := 0; cx < fmW; cx++ {
			for a := 0; a < anchorsPerCell; a++ {
				if idx >= len(scores) || idx*4+3 >= len(boxes) {
					return out
				}
				score := scores[idx]
				if score >= threshold {
					ax, ay := float32(cx)*st, float32(cy)*st
					x1 := clampF((ax-boxes[idx*4+0]*st)*scaleW, 0, float32(origW))
					y1 := clampF((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH))
					x2 := clampF((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW))
					y2 := clampF((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH))

					out = append(out, Detection{
						Box:        image.Rect(int(x1), int(y1), int(x2), int(y2)),
						Confidence: score,
					})
				}
				idx++
			}
		}
	}
	return out
}

// nms performs Non-Maximum Suppression; the result is ordered by confidence.
func nms(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) == 0 {
		return dets
	}

	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	suppressed := make([]bool, len(dets))
	var kept []Detection
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if !suppressed[j] && iou(dets[i].Box, dets[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float32(inter.Dx() * inter.Dy())
	union := float32(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

func clampF(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
