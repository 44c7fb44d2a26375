package dto

import "github.com/google/uuid"

// FaceBox is a detected face in frame pixels.
type FaceBox struct {
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Score float32 `json:"score"`
}

type EnrollmentResponse struct {
	SessionID    string   `json:"session_id"`
	State        string   `json:"state"`
	Captured     int      `json:"captured"`
	Quota        int      `json:"quota"`
	FaceDetected bool     `json:"face_detected"`
	Face         *FaceBox `json:"face,omitempty"`
}

type SubmitEnrollmentRequest struct {
	Name        string `json:"name"`
	EmployeeKey string `json:"employee_key"`
	Department  string `json:"department"`
	Position    string `json:"position"`
	Email       string `json:"email"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

type EmployeeResponse struct {
	ID             uuid.UUID `json:"id"`
	EmployeeKey    string    `json:"employee_key"`
	Name           string    `json:"name"`
	Department     string    `json:"department"`
	Position       string    `json:"position,omitempty"`
	Email          string    `json:"email,omitempty"`
	Active         bool      `json:"active"`
	ReferenceCount int       `json:"reference_count"`
	CreatedAt      string    `json:"created_at"`
}

type EmployeeListResponse struct {
	Employees []EmployeeResponse `json:"employees"`
	Total     int                `json:"total"`
}

type ReferenceSetResponse struct {
	EmployeeKey string `json:"employee_key"`
	Count       int    `json:"count"`
	Dimension   int    `json:"dimension,omitempty"`
}
