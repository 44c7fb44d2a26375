package dto

import "github.com/google/uuid"

type AttendanceResponse struct {
	ID              uuid.UUID `json:"id"`
	EmployeeKey     string    `json:"employee_key"`
	Name            string    `json:"name,omitempty"`
	Department      string    `json:"department,omitempty"`
	CheckIn         string    `json:"check_in"`
	Date            string    `json:"date"`
	ConfidenceScore int       `json:"confidence_score"`
	Status          string    `json:"status"`
	KioskID         string    `json:"kiosk_id,omitempty"`
}

type AttendanceListResponse struct {
	Date    string               `json:"date"`
	Records []AttendanceResponse `json:"records"`
	Present int                  `json:"present"`
	Late    int                  `json:"late"`
}

// RecognizeResponse is the result of a one-shot match. It never records a
// check-in.
type RecognizeResponse struct {
	FaceDetected bool     `json:"face_detected"`
	Face         *FaceBox `json:"face,omitempty"`
	Matched      bool     `json:"matched"`
	EmployeeKey  string   `json:"employee_key,omitempty"`
	Name         string   `json:"name,omitempty"`
	Department   string   `json:"department,omitempty"`
	Distance     *float64 `json:"distance,omitempty"`
	Confidence   int      `json:"confidence"`
	Threshold    float64  `json:"threshold"`
}
