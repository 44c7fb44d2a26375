// Package enroll collects reference embeddings for a new employee and
// registers them once the capture quota is met.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

// DefaultQuota is the number of captures required per employee.
const DefaultQuota = 5

type State int

const (
	Idle State = iota
	Capturing
	QuotaReached
	Submitting
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case QuotaReached:
		return "quota_reached"
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Extractor interface {
	Extract(ctx context.Context, img image.Image) (*vision.Descriptor, error)
}

type EmployeeStore interface {
	EmployeeKeyExists(ctx context.Context, key string) (bool, error)
	InsertEmployee(ctx context.Context, e *models.Employee) error
	DeleteEmployee(ctx context.Context, key string) error
}

type ReferenceWriter interface {
	Insert(ctx context.Context, identity string, embeddings []face.Embedding) error
}

type SnapshotStore interface {
	PutSnapshots(ctx context.Context, employeeKey string, jpegs [][]byte) ([]string, error)
}

// Deps wires a Controller. Snapshots is optional.
type Deps struct {
	Opener      capture.Opener
	Constraints capture.Constraints
	Extractor   Extractor
	Employees   EmployeeStore
	References  ReferenceWriter
	Snapshots   SnapshotStore
	Quota       int
}

// Progress reports the captures collected so far.
type Progress struct {
	State    State
	Captured int
	Quota    int
	Face     *vision.Descriptor
}

// Controller is the enrollment state machine. It is safe for concurrent use.
type Controller struct {
	deps Deps

	mu         sync.Mutex
	state      State
	stream     capture.Stream
	embeddings []face.Embedding
	frames     []image.Image
}

func NewController(deps Deps) *Controller {
	if deps.Quota <= 0 {
		deps.Quota = DefaultQuota
	}
	return &Controller{deps: deps}
}

// Start acquires the capture device and begins capturing. The device stays
// acquired across Reset, so a restart reuses it.
func (c *Controller) Start(ctx context.Context) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Idle, Done:
	default:
		return c.progress(nil), fmt.Errorf("start in %s: %w", c.state, ErrInvalidState)
	}

	if c.stream == nil {
		s, err := c.deps.Opener(ctx, c.deps.Constraints)
		if err != nil {
			c.state = Idle
			if !errors.Is(err, capture.ErrDevice) {
				err = fmt.Errorf("%w: %v", capture.ErrDevice, err)
			}
			return c.progress(nil), err
		}
		c.stream = s
	}

	c.embeddings, c.frames = nil, nil
	c.state = Capturing
	return c.progress(nil), nil
}

// Capture reads one frame and, if it holds a face, keeps its embedding.
// Frames without a face leave the state unchanged.
func (c *Controller) Capture(ctx context.Context) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Capturing:
	case QuotaReached:
		observability.EnrollmentCaptures.WithLabelValues("quota_reached").Inc()
		return c.progress(nil), ErrQuotaReached
	default:
		return c.progress(nil), fmt.Errorf("capture in %s: %w", c.state, ErrInvalidState)
	}

	img, desc, err := c.detect(ctx)
	if err != nil {
		observability.EnrollmentCaptures.WithLabelValues("error").Inc()
		return c.progress(nil), err
	}
	if desc == nil {
		observability.EnrollmentCaptures.WithLabelValues("no_face").Inc()
		return c.progress(nil), ErrNoFaceDetected
	}

	c.embeddings = append(c.embeddings, desc.Embedding.Clone())
	c.frames = append(c.frames, img)
	if len(c.embeddings) >= c.deps.Quota {
		c.state = QuotaReached
	}
	observability.EnrollmentCaptures.WithLabelValues("accepted").Inc()
	return c.progress(desc), nil
}

// Preview runs detection on the current frame without capturing it.
func (c *Controller) Preview(ctx context.Context) (Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Capturing && c.state != QuotaReached {
		return c.progress(nil), fmt.Errorf("preview in %s: %w", c.state, ErrInvalidState)
	}
	_, desc, err := c.detect(ctx)
	if err != nil {
		return c.progress(nil), err
	}
	return c.progress(desc), nil
}

func (c *Controller) detect(ctx context.Context) (image.Image, *vision.Descriptor, error) {
	img, err := c.stream.Frame(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read frame: %w", err)
	}
	desc, err := c.deps.Extractor.Extract(ctx, img)
	if err != nil {
		return nil, nil, fmt.Errorf("extract face: %w", err)
	}
	return img, desc, nil
}

// Submit registers the employee with the captured embeddings. Any failure
// returns the controller to QuotaReached with the embeddings kept, so the
// operator can correct the form and resubmit.
func (c *Controller) Submit(ctx context.Context, form Form) (*models.Employee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case QuotaReached:
	case Idle, Capturing:
		return nil, ErrQuotaNotMet
	default:
		return nil, fmt.Errorf("submit in %s: %w", c.state, ErrInvalidState)
	}
	if len(c.embeddings) < c.deps.Quota {
		return nil, ErrQuotaNotMet
	}

	c.state = Submitting
	emp, err := c.register(ctx, form.Normalize())
	if err != nil {
		c.state = QuotaReached
		return nil, err
	}

	c.storeSnapshots(ctx, emp.EmployeeKey)

	if err := c.release(); err != nil {
		slog.Warn("release capture device", "error", err)
	}
	c.embeddings, c.frames = nil, nil
	c.state = Done

	slog.Info("employee enrolled", "employee_key", emp.EmployeeKey, "references", c.deps.Quota)
	return emp, nil
}

func (c *Controller) register(ctx context.Context, form Form) (*models.Employee, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	exists, err := c.deps.Employees.EmployeeKeyExists(ctx, form.EmployeeKey)
	if err != nil {
		return nil, fmt.Errorf("check employee key: %w", err)
	}
	if exists {
		return nil, storage.ErrDuplicateKey
	}

	emp := form.employee()
	if err := c.deps.Employees.InsertEmployee(ctx, emp); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
		return nil, fmt.Errorf("insert employee: %w", err)
	}

	if err := c.deps.References.Insert(ctx, emp.EmployeeKey, c.embeddings); err != nil {
		if derr := c.deps.Employees.DeleteEmployee(ctx, emp.EmployeeKey); derr != nil {
			slog.Error("remove employee after reference failure",
				"employee_key", emp.EmployeeKey, "error", derr)
		}
		return nil, fmt.Errorf("insert references: %w", err)
	}
	return emp, nil
}

// storeSnapshots uploads the capture frames. Failures are logged only: the
// employee is registered either way.
func (c *Controller) storeSnapshots(ctx context.Context, key string) {
	if c.deps.Snapshots == nil || len(c.frames) == 0 {
		return
	}
	jpegs := make([][]byte, 0, len(c.frames))
	for _, img := range c.frames {
		data, err := capture.EncodeJPEG(img)
		if err != nil {
			slog.Warn("encode enrollment snapshot", "employee_key", key, "error", err)
			return
		}
		jpegs = append(jpegs, data)
	}
	if _, err := c.deps.Snapshots.PutSnapshots(ctx, key, jpegs); err != nil {
		slog.Warn("store enrollment snapshots", "employee_key", key, "error", err)
	}
}

// Reset discards the collected embeddings. The device is left acquired.
func (c *Controller) Reset() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.embeddings, c.frames = nil, nil
	c.state = Idle
	return c.progress(nil)
}

// Close releases the device and discards all progress.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.embeddings, c.frames = nil, nil
	c.state = Idle
	return c.release()
}

func (c *Controller) release() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Release()
	c.stream = nil
	return err
}

// Progress returns the current state and capture count.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress(nil)
}

func (c *Controller) progress(desc *vision.Descriptor) Progress {
	return Progress{
		State:    c.state,
		Captured: len(c.embeddings),
		Quota:    c.deps.Quota,
		Face:     desc,
	}
}
