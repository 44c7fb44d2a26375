package enroll

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

type fakeExtractor struct {
	mu    sync.Mutex
	faces []*vision.Descriptor // consumed in order; the last one repeats
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, _ image.Image) (*vision.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.faces) == 0 {
		return nil, nil
	}
	d := f.faces[0]
	if len(f.faces) > 1 {
		f.faces = f.faces[1:]
	}
	return d, nil
}

func faceAt(v float32) *vision.Descriptor {
	return &vision.Descriptor{
		Location:  image.Rect(10, 10, 60, 60),
		Score:     0.9,
		Embedding: face.Embedding{v, v, v},
	}
}

type fakeEmployees struct {
	mu        sync.Mutex
	employees map[string]*models.Employee
	insertErr error
	deleted   []string
}

func newFakeEmployees() *fakeEmployees {
	return &fakeEmployees{employees: make(map[string]*models.Employee)}
}

func (f *fakeEmployees) EmployeeKeyExists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.employees[key]
	return ok, nil
}

func (f *fakeEmployees) InsertEmployee(_ context.Context, e *models.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.employees[e.EmployeeKey]; ok {
		return storage.ErrDuplicateKey
	}
	e.Active = true
	f.employees[e.EmployeeKey] = e
	return nil
}

func (f *fakeEmployees) DeleteEmployee(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.employees, key)
	return nil
}

type fakeRefs struct {
	inserted map[string][]face.Embedding
	err      error
}

func (f *fakeRefs) Insert(_ context.Context, id string, e []face.Embedding) error {
	if f.err != nil {
		return f.err
	}
	if f.inserted == nil {
		f.inserted = make(map[string][]face.Embedding)
	}
	f.inserted[id] = append(f.inserted[id], e...)
	return nil
}

type fakeSnapshots struct {
	keys  []string
	count int
	err   error
}

func (f *fakeSnapshots) PutSnapshots(_ context.Context, key string, jpegs [][]byte) ([]string, error) {
	f.keys = append(f.keys, key)
	f.count += len(jpegs)
	return nil, f.err
}

type countingStream struct {
	capture.Still
	released int
}

func (s *countingStream) Release() error {
	s.released++
	return nil
}

type harness struct {
	ctrl      *Controller
	extractor *fakeExtractor
	employees *fakeEmployees
	refs      *fakeRefs
	snapshots *fakeSnapshots
	stream    *countingStream
	opens     int
}

func newHarness(quota int) *harness {
	h := &harness{
		extractor: &fakeExtractor{faces: []*vision.Descriptor{faceAt(0.1)}},
		employees: newFakeEmployees(),
		refs:      &fakeRefs{},
		snapshots: &fakeSnapshots{},
		stream:    &countingStream{Still: capture.Still{Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}},
	}
	h.ctrl = NewController(Deps{
		Opener: func(context.Context, capture.Constraints) (capture.Stream, error) {
			h.opens++
			return h.stream, nil
		},
		Extractor:  h.extractor,
		Employees:  h.employees,
		References: h.refs,
		Snapshots:  h.snapshots,
		Quota:      quota,
	})
	return h
}

func (h *harness) fill(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := h.ctrl.Capture(context.Background())
		require.NoError(t, err)
	}
}

var validForm = Form{Name: "Ana Lopez", EmployeeKey: "E-1", Department: "Ops"}

func TestController_HappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5)

	p, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, Capturing, p.State)

	for i := 1; i <= 5; i++ {
		p, err = h.ctrl.Capture(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, p.Captured)
		require.NotNil(t, p.Face)
	}
	assert.Equal(t, QuotaReached, p.State)

	emp, err := h.ctrl.Submit(ctx, Form{Name: " Ana Lopez ", EmployeeKey: "E-1", Department: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Lopez", emp.Name)
	assert.Equal(t, Done, h.ctrl.Progress().State)
	assert.Len(t, h.refs.inserted["E-1"], 5)
	assert.Equal(t, []string{"E-1"}, h.snapshots.keys)
	assert.Equal(t, 5, h.snapshots.count)
	assert.Equal(t, 1, h.stream.released, "device released on success")
}

func TestController_StartDeviceError(t *testing.T) {
	ctrl := NewController(Deps{
		Opener: func(context.Context, capture.Constraints) (capture.Stream, error) {
			return nil, errors.New("permission denied")
		},
	})

	p, err := ctrl.Start(context.Background())
	assert.ErrorIs(t, err, capture.ErrDevice)
	assert.Equal(t, Idle, p.State)
}

func TestController_NoFaceLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 2)

	h.extractor.faces = nil
	p, err := h.ctrl.Capture(ctx)
	assert.ErrorIs(t, err, ErrNoFaceDetected)
	assert.Equal(t, Capturing, p.State)
	assert.Equal(t, 2, p.Captured)
}

func TestController_CaptureBeyondQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 3)

	p, err := h.ctrl.Capture(ctx)
	assert.ErrorIs(t, err, ErrQuotaReached)
	assert.Equal(t, 3, p.Captured)
}

func TestController_CaptureBeforeStart(t *testing.T) {
	h := newHarness(5)
	_, err := h.ctrl.Capture(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestController_SubmitQuotaNotMet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 4)

	// rejected before the form is even looked at
	_, err = h.ctrl.Submit(ctx, Form{})
	assert.ErrorIs(t, err, ErrQuotaNotMet)
	_, err = h.ctrl.Submit(ctx, validForm)
	assert.ErrorIs(t, err, ErrQuotaNotMet)

	assert.Empty(t, h.employees.employees)
	assert.Empty(t, h.refs.inserted)
	assert.Equal(t, 4, h.ctrl.Progress().Captured)
}

func TestController_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 1)

	_, err = h.ctrl.Submit(ctx, Form{EmployeeKey: "E-1", Name: "   "})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"name", "department"}, vErr.Fields)

	p := h.ctrl.Progress()
	assert.Equal(t, QuotaReached, p.State)
	assert.Equal(t, 1, p.Captured, "embeddings kept for resubmission")

	_, err = h.ctrl.Submit(ctx, validForm)
	require.NoError(t, err)
}

func TestController_DuplicateKey(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	h.employees.employees["E-1"] = &models.Employee{EmployeeKey: "E-1", Name: "Existing"}

	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 2)

	_, err = h.ctrl.Submit(ctx, validForm)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Len(t, h.employees.employees, 1)
	assert.Equal(t, "Existing", h.employees.employees["E-1"].Name)
	assert.Empty(t, h.refs.inserted)
	assert.Equal(t, QuotaReached, h.ctrl.Progress().State)
	assert.Zero(t, h.stream.released)
}

func TestController_DuplicateKeyRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1)
	h.employees.insertErr = storage.ErrDuplicateKey

	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 1)

	_, err = h.ctrl.Submit(ctx, validForm)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Empty(t, h.refs.inserted)
}

func TestController_ReferenceFailureRemovesEmployee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(2)
	h.refs.err = errors.New("disk full")

	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 2)

	_, err = h.ctrl.Submit(ctx, validForm)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, []string{"E-1"}, h.employees.deleted)
	assert.Empty(t, h.employees.employees)
	assert.Equal(t, QuotaReached, h.ctrl.Progress().State)
}

func TestController_SnapshotFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1)
	h.snapshots.err = errors.New("bucket gone")

	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 1)

	_, err = h.ctrl.Submit(ctx, validForm)
	require.NoError(t, err)
	assert.Equal(t, Done, h.ctrl.Progress().State)
}

func TestController_ResetKeepsDevice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 2)

	p := h.ctrl.Reset()
	assert.Equal(t, Idle, p.State)
	assert.Zero(t, p.Captured)
	assert.Zero(t, h.stream.released)

	_, err = h.ctrl.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.opens, "restart reuses the acquired device")
}

func TestController_CloseReleasesDevice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3)
	_, err := h.ctrl.Start(ctx)
	require.NoError(t, err)
	h.fill(t, 1)

	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, 1, h.stream.released)
	assert.Equal(t, Idle, h.ctrl.Progress().State)

	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, 1, h.stream.released)
}

func TestController_Preview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3)

	_, err := h.ctrl.Preview(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.ctrl.Start(ctx)
	require.NoError(t, err)
	p, err := h.ctrl.Preview(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p.Face)
	assert.Zero(t, p.Captured)
}

func TestSessions(t *testing.T) {
	clock := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s := NewSessions(Deps{Extractor: &fakeExtractor{faces: []*vision.Descriptor{faceAt(0.2)}}, Quota: 1}, time.Minute)
	s.now = func() time.Time { return clock }

	a := s.Create()
	b := s.Create()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, s.Len())

	// the session's frame buffer is its capture device
	ctx := context.Background()
	_, err := a.Controller.Start(ctx)
	require.NoError(t, err)
	a.Frames.Push(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	p, err := a.Controller.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, QuotaReached, p.State)

	clock = clock.Add(45 * time.Second)
	_, ok := s.Get(a.ID)
	require.True(t, ok)

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, 1, s.Sweep(), "only the untouched session expires")
	_, ok = s.Get(b.ID)
	assert.False(t, ok)

	assert.True(t, s.Remove(a.ID))
	assert.False(t, s.Remove(a.ID))
	assert.Zero(t, s.Len())

	_, err = a.Frames.Frame(ctx)
	assert.ErrorIs(t, err, capture.ErrReleased, "removing a session releases its device")
}

// widthExtractor embeds a frame as its width, so each frame has a distinct
// embedding.
type widthExtractor struct{}

func (widthExtractor) Extract(ctx context.Context, img image.Image) (*vision.Descriptor, error) {
	// widen the window between reading the frame and returning
	time.Sleep(time.Millisecond)
	return &vision.Descriptor{
		Location:  img.Bounds(),
		Score:     0.9,
		Embedding: face.Embedding{float32(img.Bounds().Dx())},
	}, nil
}

func TestSession_ConcurrentCapturesKeepTheirFrames(t *testing.T) {
	const quota = 8
	refs := &fakeRefs{}
	s := NewSessions(Deps{
		Extractor:  widthExtractor{},
		Employees:  newFakeEmployees(),
		References: refs,
		Quota:      quota,
	}, time.Minute)
	sess := s.Create()
	ctx := context.Background()
	_, err := sess.Controller.Start(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, quota)
	for i := 1; i <= quota; i++ {
		wg.Add(1)
		go func(width int) {
			defer wg.Done()
			_, err := sess.CaptureFrame(ctx, image.NewRGBA(image.Rect(0, 0, width, 4)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, err = sess.Controller.Submit(ctx, validForm)
	require.NoError(t, err)

	seen := make(map[float32]bool)
	for _, e := range refs.inserted["E-1"] {
		assert.False(t, seen[e[0]], "frame %v embedded twice", e[0])
		seen[e[0]] = true
	}
	assert.Len(t, seen, quota)
}

func TestSession_PreviewFrame(t *testing.T) {
	s := NewSessions(Deps{Extractor: widthExtractor{}, Quota: 2}, time.Minute)
	sess := s.Create()
	ctx := context.Background()
	_, err := sess.Controller.Start(ctx)
	require.NoError(t, err)

	p, err := sess.PreviewFrame(ctx, image.NewRGBA(image.Rect(0, 0, 6, 4)))
	require.NoError(t, err)
	require.NotNil(t, p.Face)
	assert.Equal(t, face.Embedding{6}, p.Face.Embedding)
	assert.Zero(t, p.Captured)
}
