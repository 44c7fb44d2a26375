package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/your-org/facecheck/internal/models"
)

// screen prints the kiosk display to a terminal. Only changes are printed,
// so a face held in front of the camera does not flood the output.
type screen struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func newScreen(w io.Writer) *screen {
	return &screen{w: w}
}

func (s *screen) Display(_ context.Context, ev models.DisplayEvent) {
	line := displayLine(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	if line == s.last {
		return
	}
	s.last = line
	fmt.Fprintln(s.w, line)
}

func (s *screen) CheckedIn(context.Context, models.CheckInEvent) {}

func displayLine(ev models.DisplayEvent) string {
	switch ev.State {
	case models.DisplayCheckedIn:
		return fmt.Sprintf("[%s] Welcome, %s (%s) - %s, %d%% match",
			ev.Timestamp.Format("15:04:05"), ev.Name, ev.Department, ev.Status, ev.Confidence)
	case models.DisplayAlreadyMarked:
		return fmt.Sprintf("%s: attendance already marked today", ev.Name)
	case models.DisplayCheckInFailed:
		return fmt.Sprintf("%s: check-in could not be saved, please try again", ev.Name)
	case models.DisplayUnknown:
		return "Unknown face. Please contact admin to register."
	default:
		return "Scanning..."
	}
}
