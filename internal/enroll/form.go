package enroll

import (
	"strings"

	"github.com/your-org/facecheck/internal/models"
)

// Form is the employee data submitted with a completed enrollment.
type Form struct {
	Name        string
	EmployeeKey string
	Department  string
	Position    string
	Email       string
}

// Normalize trims surrounding whitespace from every field.
func (f Form) Normalize() Form {
	return Form{
		Name:        strings.TrimSpace(f.Name),
		EmployeeKey: strings.TrimSpace(f.EmployeeKey),
		Department:  strings.TrimSpace(f.Department),
		Position:    strings.TrimSpace(f.Position),
		Email:       strings.TrimSpace(f.Email),
	}
}

// Validate returns a *ValidationError naming every blank required field.
func (f Form) Validate() error {
	var missing []string
	if f.Name == "" {
		missing = append(missing, "name")
	}
	if f.EmployeeKey == "" {
		missing = append(missing, "employee_key")
	}
	if f.Department == "" {
		missing = append(missing, "department")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func (f Form) employee() *models.Employee {
	return &models.Employee{
		EmployeeKey: f.EmployeeKey,
		Name:        f.Name,
		Department:  f.Department,
		Position:    f.Position,
		Email:       f.Email,
	}
}
