package models

import (
	"time"

	"github.com/google/uuid"
)

type Employee struct {
	ID          uuid.UUID `json:"id" db:"id"`
	EmployeeKey string    `json:"employee_key" db:"employee_key"` // identity key used by the matcher
	Name        string    `json:"name" db:"name"`
	Department  string    `json:"department" db:"department"`
	Position    string    `json:"position" db:"position"`
	Email       string    `json:"email" db:"email"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ReferenceRecord is one enrolled embedding of an identity.
type ReferenceRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Identity  string    `json:"identity" db:"identity"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
