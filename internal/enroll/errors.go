package enroll

import (
	"errors"
	"strings"
)

var (
	ErrNoFaceDetected = errors.New("no face detected")
	ErrQuotaNotMet    = errors.New("capture quota not met")
	ErrQuotaReached   = errors.New("capture quota already reached")
	ErrInvalidState   = errors.New("operation not allowed in current state")
)

// ValidationError lists the required form fields that were blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}
