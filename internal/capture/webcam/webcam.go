// Package webcam opens local cameras through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/your-org/facecheck/internal/capture"
)

// Camera is an open OpenCV video capture.
type Camera struct {
	mu  sync.Mutex
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

// Opener returns a capture.Opener for device, either a numeric index or a
// path understood by OpenCV.
func Opener(device string) capture.Opener {
	return func(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
		return Open(device, c)
	}
}

func Open(device string, c capture.Constraints) (*Camera, error) {
	var id interface{} = device
	if idx, err := strconv.Atoi(device); err == nil {
		id = idx
	}

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", capture.ErrDevice, device, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s not opened", capture.ErrDevice, device)
	}

	if c.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.FacingMode != "" {
		// desktop webcams expose no facing mode
		slog.Debug("facing mode ignored", "device", device, "facing_mode", c.FacingMode)
	}

	slog.Info("webcam opened", "device", device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))

	return &Camera{vc: vc, mat: gocv.NewMat()}, nil
}

func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, capture.ErrReleased
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("%w: read frame failed", capture.ErrDevice)
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (c *Camera) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	_ = c.mat.Close()
	err := c.vc.Close()
	c.vc = nil
	if err != nil {
		return fmt.Errorf("close webcam: %w", err)
	}
	return nil
}
