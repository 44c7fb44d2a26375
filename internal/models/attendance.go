package models

import (
	"time"

	"github.com/google/uuid"
)

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
)

// DateLayout is the calendar-day key of an attendance record.
const DateLayout = "2006-01-02"

type Attendance struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	EmployeeKey     string           `json:"employee_key" db:"employee_key"`
	CheckIn         time.Time        `json:"check_in" db:"check_in"`
	Date            string           `json:"date" db:"work_date"` // YYYY-MM-DD in the kiosk's local time
	ConfidenceScore int              `json:"confidence_score" db:"confidence_score"`
	Status          AttendanceStatus `json:"status" db:"status"`
	KioskID         string           `json:"kiosk_id" db:"kiosk_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
}

// CheckInEvent is published to NATS after an attendance record is stored.
type CheckInEvent struct {
	AttendanceID    uuid.UUID        `json:"attendance_id"`
	KioskID         string           `json:"kiosk_id"`
	EmployeeKey     string           `json:"employee_key"`
	Name            string           `json:"name"`
	Department      string           `json:"department"`
	Timestamp       time.Time        `json:"timestamp"`
	Date            string           `json:"date"`
	ConfidenceScore int              `json:"confidence_score"`
	Distance        float64          `json:"distance"`
	Status          AttendanceStatus `json:"status"`
}

// DisplayState is what a kiosk shows for the current frame.
type DisplayState string

const (
	DisplayScanning      DisplayState = "scanning"
	DisplayUnknown       DisplayState = "unknown"
	DisplayAlreadyMarked DisplayState = "already_marked"
	DisplayCheckedIn     DisplayState = "checked_in"
	// DisplayCheckInFailed means the match was accepted but the attendance
	// record could not be stored.
	DisplayCheckInFailed DisplayState = "check_in_failed"
)

// DisplayEvent mirrors the kiosk screen; published on core NATS, not persisted.
type DisplayEvent struct {
	KioskID     string           `json:"kiosk_id"`
	State       DisplayState     `json:"state"`
	EmployeeKey string           `json:"employee_key,omitempty"`
	Name        string           `json:"name,omitempty"`
	Department  string           `json:"department,omitempty"`
	Confidence  int              `json:"confidence,omitempty"`
	Status      AttendanceStatus `json:"status,omitempty"`
	BBox        [4]int           `json:"bbox,omitempty"` // x1, y1, x2, y2
	Timestamp   time.Time        `json:"timestamp"`
}
