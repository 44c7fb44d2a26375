// Package capture abstracts the camera that feeds enrollment and recognition.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrDevice is wrapped by every failure to acquire or read a capture device.
var ErrDevice = errors.New("capture device unavailable")

// ErrReleased is returned by Frame after the stream has been released.
var ErrReleased = errors.New("capture stream released")

// Source yields frames on demand.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Stream is an acquired device. Release must be called on every exit path.
type Stream interface {
	Source
	Release() error
}

// Constraints are hints for device selection. Devices that cannot honour a
// hint ignore it.
type Constraints struct {
	FacingMode string // "user" or "environment"
	Width      int
	Height     int
}

// Opener acquires a device.
type Opener func(ctx context.Context, c Constraints) (Stream, error)

// IsNetworkURL reports whether device names a stream read through ffmpeg
// rather than a local webcam index.
func IsNetworkURL(device string) bool {
	for _, p := range []string{"rtsp://", "rtsps://", "http://", "https://"} {
		if strings.HasPrefix(device, p) {
			return true
		}
	}
	return false
}

// Decode parses an uploaded JPEG or PNG frame, applying EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode frame: empty image")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes a frame for snapshot storage.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
