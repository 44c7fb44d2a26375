package recognize

import (
	"time"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
)

// Cutoff is the daily wall-clock time separating present from late.
type Cutoff struct {
	Hour   int
	Minute int
}

// DefaultCutoff is 09:00.
var DefaultCutoff = Cutoff{Hour: 9}

// ParseCutoff parses an HH:MM cutoff.
func ParseCutoff(s string) (Cutoff, error) {
	h, m, err := config.ParseClock(s)
	if err != nil {
		return Cutoff{}, err
	}
	return Cutoff{Hour: h, Minute: m}, nil
}

// StatusAt classifies a check-in at t, in t's location. A check-in exactly at
// the cutoff counts as present.
func (c Cutoff) StatusAt(t time.Time) models.AttendanceStatus {
	limit := time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
	if t.After(limit) {
		return models.StatusLate
	}
	return models.StatusPresent
}

// WorkDate is the attendance day key of t in t's location.
func WorkDate(t time.Time) string {
	return t.Format(models.DateLayout)
}
