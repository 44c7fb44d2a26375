package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// normalisation constants: pixel = (pixel - mean) / std
const (
	detMean = 127.5
	detStd  = 128.0
	embMean = 127.5
	embStd  = 127.5
)

// cropPadding widens the detector box on each side before embedding.
const cropPadding = 0.1

// toCHW resizes img to w x h and returns planar RGB floats normalised as
// (pixel - mean) / std.
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	resized := imaging.Resize(img, w, h, imaging.Linear)

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			idx := y*w + x
			data[idx] = (float32(px[0]) - mean) / std
			data[plane+idx] = (float32(px[1]) - mean) / std
			data[2*plane+idx] = (float32(px[2]) - mean) / std
		}
	}
	return data
}

// cropFace cuts the padded face box out of img. It returns nil for boxes that
// do not overlap the image.
func cropFace(img image.Image, box image.Rectangle) image.Image {
	bounds := img.Bounds()
	box = box.Intersect(bounds)
	if box.Empty() {
		return nil
	}

	padW := int(float64(box.Dx()) * cropPadding)
	padH := int(float64(box.Dy()) * cropPadding)
	padded := image.Rect(box.Min.X-padW, box.Min.Y-padH, box.Max.X+padW, box.Max.Y+padH).Intersect(bounds)

	return imaging.Crop(img, padded)
}
