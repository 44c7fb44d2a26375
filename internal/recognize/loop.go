// Package recognize runs the kiosk recognition loop that turns accepted
// matches into daily check-ins.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

type Extractor interface {
	Extract(ctx context.Context, img image.Image) (*vision.Descriptor, error)
}

type ReferenceSource interface {
	All(ctx context.Context) ([]face.Reference, error)
}

type EmployeeDirectory interface {
	ListActiveEmployees(ctx context.Context) ([]models.Employee, error)
}

type AttendanceStore interface {
	InsertAttendance(ctx context.Context, a *models.Attendance) error
	ListAttendanceByDate(ctx context.Context, date string) ([]models.Attendance, error)
}

// Observer receives what the kiosk displays and every stored check-in.
// Calls are made from the loop goroutine and must not block.
type Observer interface {
	Display(ctx context.Context, ev models.DisplayEvent)
	CheckedIn(ctx context.Context, ev models.CheckInEvent)
}

type Deps struct {
	Opener     capture.Opener
	Extractor  Extractor
	References ReferenceSource
	Employees  EmployeeDirectory
	Attendance AttendanceStore
	Observers  []Observer
}

type Options struct {
	KioskID       string
	Threshold     float64
	// Cutoff defaults to DefaultCutoff when nil; 00:00 is a valid cutoff.
	Cutoff        *Cutoff
	Cooldown      time.Duration
	FrameInterval time.Duration
	Constraints   capture.Constraints
}

// Outcome is the result of processing one frame.
type Outcome struct {
	State    models.DisplayState
	Match    face.Match
	Face     *vision.Descriptor
	Employee *models.Employee
	CheckIn  *models.Attendance
}

// MaxDeviceFailures is how many consecutive device read errors end Run.
// A single dropped webcam frame is tolerated; an unplugged camera is not.
const MaxDeviceFailures = 5

// Loop is single-use: call Run once. All state below is owned by the Run
// goroutine.
type Loop struct {
	deps    Deps
	opts    Options
	matcher face.Matcher
	cutoff  Cutoff
	now     func() time.Time
	reload  chan struct{}

	refs      []face.Reference
	employees map[string]models.Employee
	day       string
	marked    map[string]struct{}
}

func NewLoop(deps Deps, opts Options) *Loop {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 500 * time.Millisecond
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 33 * time.Millisecond
	}
	cutoff := DefaultCutoff
	if opts.Cutoff != nil {
		cutoff = *opts.Cutoff
	}
	return &Loop{
		deps:    deps,
		opts:    opts,
		cutoff:  cutoff,
		matcher: face.NewMatcher(opts.Threshold),
		now:     time.Now,
		reload:  make(chan struct{}, 1),
	}
}

// Reload asks the running loop to refresh its reference snapshot and employee
// directory before the next frame. It never blocks.
func (l *Loop) Reload() {
	select {
	case l.reload <- struct{}{}:
	default:
	}
}

// Run acquires the capture device and processes frames until ctx is
// cancelled. At most one frame is in flight; after each attempt the next one
// waits for the cooldown. The device is released on every exit path.
func (l *Loop) Run(ctx context.Context) error {
	stream, err := l.deps.Opener(ctx, l.opts.Constraints)
	if err != nil {
		if !errors.Is(err, capture.ErrDevice) {
			err = fmt.Errorf("%w: %v", capture.ErrDevice, err)
		}
		return err
	}
	defer func() {
		if err := stream.Release(); err != nil {
			slog.Warn("release capture device", "error", err)
		}
	}()

	if err := l.loadSnapshot(ctx); err != nil {
		return err
	}
	l.seed(ctx, WorkDate(l.now()))

	slog.Info("recognition loop started",
		"kiosk_id", l.opts.KioskID,
		"identities", len(l.refs),
		"threshold", l.matcher.Threshold,
		"cutoff", fmt.Sprintf("%02d:%02d", l.cutoff.Hour, l.cutoff.Minute))

	ticker := time.NewTicker(l.opts.FrameInterval)
	defer ticker.Stop()
	cooldown := time.NewTimer(time.Hour)
	cooldown.Stop()
	defer cooldown.Stop()

	busy := false
	deviceFailures := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("recognition loop stopped", "kiosk_id", l.opts.KioskID)
			return nil

		case <-l.reload:
			if err := l.loadSnapshot(ctx); err != nil {
				slog.Error("reload references", "error", err)
			}

		case <-cooldown.C:
			busy = false

		case <-ticker.C:
			if busy {
				continue
			}
			busy = true

			img, err := stream.Frame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, capture.ErrReleased) {
					return fmt.Errorf("%w: stream closed", capture.ErrDevice)
				}
				if errors.Is(err, capture.ErrDevice) {
					deviceFailures++
					if deviceFailures >= MaxDeviceFailures {
						return fmt.Errorf("read frame: %d consecutive failures: %w", deviceFailures, err)
					}
				}
				slog.Warn("read frame", "error", err, "consecutive_failures", deviceFailures)
			} else {
				deviceFailures = 0
				l.Process(ctx, img)
			}
			cooldown.Reset(l.opts.Cooldown)
		}
	}
}

func (l *Loop) loadSnapshot(ctx context.Context) error {
	refs, err := l.deps.References.All(ctx)
	if err != nil {
		return fmt.Errorf("load references: %w", err)
	}
	employees, err := l.deps.Employees.ListActiveEmployees(ctx)
	if err != nil {
		return fmt.Errorf("load employees: %w", err)
	}

	l.refs = refs
	l.employees = make(map[string]models.Employee, len(employees))
	for _, e := range employees {
		l.employees[e.EmployeeKey] = e
	}
	slog.Info("reference snapshot loaded", "identities", len(refs), "employees", len(employees))
	return nil
}

// seed resets the marked set for day from the attendance store. A failed
// seed leaves the set empty; the store's per-day uniqueness still holds.
func (l *Loop) seed(ctx context.Context, day string) {
	l.day = day
	l.marked = make(map[string]struct{})

	records, err := l.deps.Attendance.ListAttendanceByDate(ctx, day)
	if err != nil {
		slog.Error("seed marked set", "date", day, "error", err)
		return
	}
	for _, r := range records {
		l.marked[r.EmployeeKey] = struct{}{}
	}
	slog.Info("marked set seeded", "date", day, "marked", len(l.marked))
}

// Process runs extraction, matching and the check-in side effect for one
// frame. It must only be called from the goroutine that owns the loop.
func (l *Loop) Process(ctx context.Context, img image.Image) Outcome {
	now := l.now()
	if day := WorkDate(now); day != l.day {
		l.seed(ctx, day)
	}

	observability.FramesProcessed.WithLabelValues(l.opts.KioskID).Inc()
	desc, err := l.deps.Extractor.Extract(ctx, img)
	if err != nil {
		slog.Warn("extract face", "error", err)
		return Outcome{State: models.DisplayScanning}
	}
	if desc == nil {
		out := Outcome{State: models.DisplayScanning}
		l.display(ctx, out, now)
		return out
	}
	observability.FacesDetected.WithLabelValues(l.opts.KioskID).Inc()

	start := time.Now()
	match, accepted := l.matcher.Match(desc.Embedding, l.refs)
	observability.InferenceDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())

	out := Outcome{Face: desc, Match: match}
	emp, known := l.employees[match.Identity]
	switch {
	case match.Identity == "":
		observability.MatchAttempts.WithLabelValues("unknown").Inc()
		out.State = models.DisplayUnknown
	case !accepted || !known:
		observability.MatchAttempts.WithLabelValues("rejected").Inc()
		out.State = models.DisplayUnknown
	default:
		observability.MatchAttempts.WithLabelValues("accepted").Inc()
		out.Employee = &emp
		out.State = l.checkIn(ctx, &out, now)
	}

	l.display(ctx, out, now)
	return out
}

// checkIn records the first accepted sighting of the day and returns the
// display state. A failed insert leaves the identity unmarked so the next
// recognised frame retries it.
func (l *Loop) checkIn(ctx context.Context, out *Outcome, now time.Time) models.DisplayState {
	key := out.Match.Identity
	if _, done := l.marked[key]; done {
		return models.DisplayAlreadyMarked
	}

	rec := &models.Attendance{
		EmployeeKey:     key,
		CheckIn:         now,
		Date:            l.day,
		ConfidenceScore: out.Match.Confidence(),
		Status:          l.cutoff.StatusAt(now),
		KioskID:         l.opts.KioskID,
	}
	err := l.deps.Attendance.InsertAttendance(ctx, rec)
	switch {
	case errors.Is(err, storage.ErrAlreadyCheckedIn):
		l.marked[key] = struct{}{}
		return models.DisplayAlreadyMarked
	case err != nil:
		observability.CheckInFailures.Inc()
		slog.Error("record check-in", "employee_key", key, "error", err)
		return models.DisplayCheckInFailed
	}

	l.marked[key] = struct{}{}
	out.CheckIn = rec
	observability.CheckIns.WithLabelValues(string(rec.Status)).Inc()
	slog.Info("check-in recorded",
		"employee_key", key,
		"status", rec.Status,
		"distance", out.Match.Distance,
		"confidence", rec.ConfidenceScore)

	ev := models.CheckInEvent{
		AttendanceID:    rec.ID,
		KioskID:         l.opts.KioskID,
		EmployeeKey:     key,
		Name:            out.Employee.Name,
		Department:      out.Employee.Department,
		Timestamp:       now,
		Date:            rec.Date,
		ConfidenceScore: rec.ConfidenceScore,
		Distance:        out.Match.Distance,
		Status:          rec.Status,
	}
	for _, o := range l.deps.Observers {
		o.CheckedIn(ctx, ev)
	}
	return models.DisplayCheckedIn
}

func (l *Loop) display(ctx context.Context, out Outcome, now time.Time) {
	if len(l.deps.Observers) == 0 {
		return
	}
	ev := models.DisplayEvent{
		KioskID:   l.opts.KioskID,
		State:     out.State,
		Timestamp: now,
	}
	if out.Face != nil {
		b := out.Face.Location
		ev.BBox = [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
	}
	if out.Employee != nil {
		ev.EmployeeKey = out.Employee.EmployeeKey
		ev.Name = out.Employee.Name
		ev.Department = out.Employee.Department
		ev.Confidence = face.DisplayConfidence(out.Match.Distance)
	}
	if out.CheckIn != nil {
		ev.Status = out.CheckIn.Status
	}
	for _, o := range l.deps.Observers {
		o.Display(ctx, ev)
	}
}
