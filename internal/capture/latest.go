package capture

import (
	"context"
	"image"
	"sync"
)

// Latest holds the most recent pushed frame. Browser uploads and the ffmpeg
// reader both feed one; Frame returns the newest frame, waiting for the first.
type Latest struct {
	mu       sync.Mutex
	img      image.Image
	released bool
	arrived  chan struct{} // closed and replaced on every Push
}

func NewLatest() *Latest {
	return &Latest{arrived: make(chan struct{})}
}

// Push replaces the current frame and wakes waiting readers.
func (l *Latest) Push(img image.Image) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.img = img
	close(l.arrived)
	l.arrived = make(chan struct{})
}

func (l *Latest) Frame(ctx context.Context) (image.Image, error) {
	for {
		l.mu.Lock()
		if l.released {
			l.mu.Unlock()
			return nil, ErrReleased
		}
		if l.img != nil {
			img := l.img
			l.mu.Unlock()
			return img, nil
		}
		wait := l.arrived
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Release drops the held frame and fails subsequent reads until reopened.
func (l *Latest) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.released = true
	l.img = nil
	close(l.arrived)
	l.arrived = make(chan struct{})
	return nil
}

// Opener reopens l as a stream. The same Latest is returned on each call.
func (l *Latest) Opener() Opener {
	return func(ctx context.Context, _ Constraints) (Stream, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = false
		return l, nil
	}
}

// Still is a stream that always yields one image.
type Still struct {
	Image image.Image
}

func (s Still) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Image, nil
}

func (s Still) Release() error { return nil }
