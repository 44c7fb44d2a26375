package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	maxJPEGSize     = 10 * 1024 * 1024
	firstFrameWait  = 5 * time.Second
	startupPollStep = 100 * time.Millisecond
)

// NetworkCamera reads an RTSP or HTTP camera through ffmpeg and keeps the
// newest decoded frame.
type NetworkCamera struct {
	*Latest

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NetworkOpener returns an Opener for the camera at url, sampled at fps.
func NetworkOpener(url string, fps int) Opener {
	return func(ctx context.Context, c Constraints) (Stream, error) {
		return OpenNetworkCamera(ctx, url, fps, c.Width)
	}
}

// OpenNetworkCamera starts ffmpeg and waits until the first frame arrives.
func OpenNetworkCamera(ctx context.Context, url string, fps, width int) (*NetworkCamera, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	cam := &NetworkCamera{
		Latest: NewLatest(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(cam.done)
		err := runFFmpeg(runCtx, ffmpegArgs(url, fps, width), cam.push)
		if err != nil && runCtx.Err() == nil {
			slog.Error("network camera stopped", "url", url, "error", err)
		}
		cam.mu.Lock()
		cam.err = err
		cam.mu.Unlock()
		_ = cam.Latest.Release()
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, firstFrameWait)
	defer waitCancel()
	if _, err := cam.Latest.Frame(waitCtx); err != nil {
		_ = cam.Release()
		return nil, fmt.Errorf("%w: no frames from %s: %v", ErrDevice, url, cam.failure(err))
	}

	slog.Info("network camera opened", "url", url, "fps", fps)
	return cam, nil
}

func (c *NetworkCamera) push(data []byte) error {
	img, err := Decode(data)
	if err != nil {
		return err
	}
	c.Latest.Push(img)
	return nil
}

func (c *NetworkCamera) failure(fallback error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return fallback
}

// Release stops ffmpeg and waits for the reader to exit.
func (c *NetworkCamera) Release() error {
	c.cancel()
	<-c.done
	return nil
}

func ffmpegArgs(url string, fps, width int) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch {
	case strings.HasPrefix(url, "rtsp://"), strings.HasPrefix(url, "rtsps://"):
		args = append(args, "-rtsp_transport", "tcp", "-timeout", "5000000")
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	}

	filter := fmt.Sprintf("fps=%d", fps)
	if width > 0 {
		filter += fmt.Sprintf(",scale=%d:-1", width)
	}
	return append(args,
		"-i", url,
		"-vf", filter,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

// runFFmpeg blocks until ctx is cancelled or the stream ends, handing every
// JPEG frame to sink.
func runFFmpeg(ctx context.Context, args []string, sink func([]byte) error) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := splitJPEGStream(ctx, stdout, sink); err != nil {
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}
	return cmd.Wait()
}

// splitJPEGStream cuts a concatenated MJPEG stream into frames. EOF before the
// first frame is tolerated for firstFrameWait while ffmpeg connects.
func splitJPEGStream(ctx context.Context, r io.Reader, sink func([]byte) error) error {
	br := bufio.NewReaderSize(r, 512*1024)
	frames := 0
	deadline := time.Now().Add(firstFrameWait)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := skipToSOI(br)
		if errors.Is(err, io.EOF) {
			if frames > 0 {
				return nil
			}
			if time.Now().Before(deadline) {
				time.Sleep(startupPollStep)
				continue
			}
			return fmt.Errorf("no frames received within %s", firstFrameWait)
		}
		if err != nil {
			return err
		}

		frame, err := readToEOI(br)
		if err != nil {
			if errors.Is(err, io.EOF) && frames > 0 {
				return nil
			}
			return err
		}

		frames++
		if err := sink(frame); err != nil {
			slog.Warn("drop camera frame", "error", err)
		}
	}
}

// skipToSOI consumes bytes up to and including the FF D8 start-of-image marker.
func skipToSOI(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		if err := r.UnreadByte(); err != nil {
			return err
		}
		pair, err := r.Peek(2)
		if err != nil {
			return err
		}
		if pair[1] == 0xD8 {
			_, _ = r.Discard(2)
			return nil
		}
		_, _ = r.Discard(1)
	}
}

// readToEOI returns one frame, SOI through the FF D9 end-of-image marker.
func readToEOI(r *bufio.Reader) ([]byte, error) {
	frame := []byte{0xFF, 0xD8}
	for {
		chunk, err := r.ReadSlice(0xFF)
		frame = append(frame, chunk...)
		if err != nil && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
		if len(frame) > maxJPEGSize {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", maxJPEGSize)
		}
		if err != nil {
			continue
		}

		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, next)
		if next == 0xD9 {
			return frame, nil
		}
		if next == 0xFF {
			// FF FF: the second byte may open the marker
			_ = r.UnreadByte()
			frame = frame[:len(frame)-1]
		}
	}
}
