package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/pkg/dto"
)

type AttendanceStore interface {
	ListAttendanceByDate(ctx context.Context, date string) ([]models.Attendance, error)
}

type AttendanceHandler struct {
	db        AttendanceStore
	employees EmployeeStore
	now       func() time.Time
}

func NewAttendanceHandler(db AttendanceStore, employees EmployeeStore) *AttendanceHandler {
	return &AttendanceHandler{db: db, employees: employees, now: time.Now}
}

// List returns the check-ins of ?date=YYYY-MM-DD, today by default.
func (h *AttendanceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	date := c.Query("date")
	if date == "" {
		date = h.now().Format(models.DateLayout)
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	records, err := h.db.ListAttendanceByDate(ctx, date)
	if err != nil {
		writeError(c, err)
		return
	}
	employees, err := h.employees.ListActiveEmployees(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	byKey := make(map[string]models.Employee, len(employees))
	for _, e := range employees {
		byKey[e.EmployeeKey] = e
	}

	resp := dto.AttendanceListResponse{Date: date, Records: make([]dto.AttendanceResponse, 0, len(records))}
	for _, r := range records {
		e := byKey[r.EmployeeKey]
		resp.Records = append(resp.Records, dto.AttendanceResponse{
			ID:              r.ID,
			EmployeeKey:     r.EmployeeKey,
			Name:            e.Name,
			Department:      e.Department,
			CheckIn:         r.CheckIn.Format(time.RFC3339),
			Date:            r.Date,
			ConfidenceScore: r.ConfidenceScore,
			Status:          string(r.Status),
			KioskID:         r.KioskID,
		})
		switch r.Status {
		case models.StatusPresent:
			resp.Present++
		case models.StatusLate:
			resp.Late++
		}
	}
	c.JSON(http.StatusOK, resp)
}
