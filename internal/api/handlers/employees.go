package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/pkg/dto"
)

type EmployeeStore interface {
	ListActiveEmployees(ctx context.Context) ([]models.Employee, error)
	GetEmployee(ctx context.Context, key string) (*models.Employee, error)
	DeleteEmployee(ctx context.Context, key string) error
}

// ReferenceStore is the subset of refstore.Store the API uses.
type ReferenceStore interface {
	ByIdentity(ctx context.Context, identity string) ([]face.Embedding, error)
	All(ctx context.Context) ([]face.Reference, error)
	DeleteByIdentity(ctx context.Context, identity string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context, identity string) (int, error)
}

type SnapshotStore interface {
	DeleteSnapshots(ctx context.Context, employeeKey string) error
}

type EmployeeHandler struct {
	db        EmployeeStore
	refs      ReferenceStore
	snapshots SnapshotStore
	notify    ReferenceNotifier
}

func NewEmployeeHandler(db EmployeeStore, refs ReferenceStore, snapshots SnapshotStore, notify ReferenceNotifier) *EmployeeHandler {
	return &EmployeeHandler{db: db, refs: refs, snapshots: snapshots, notify: notify}
}

func (h *EmployeeHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	employees, err := h.db.ListActiveEmployees(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := dto.EmployeeListResponse{Employees: make([]dto.EmployeeResponse, 0, len(employees))}
	for _, e := range employees {
		n, err := h.refs.Count(ctx, e.EmployeeKey)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.Employees = append(resp.Employees, employeeResponse(e, n))
	}
	resp.Total = len(resp.Employees)
	c.JSON(http.StatusOK, resp)
}

func (h *EmployeeHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	e, err := h.db.GetEmployee(ctx, c.Param("key"))
	if err != nil {
		writeError(c, err)
		return
	}
	n, err := h.refs.Count(ctx, e.EmployeeKey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, employeeResponse(*e, n))
}

// Delete removes the employee, their attendance and every reference record.
func (h *EmployeeHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	key := c.Param("key")

	err := h.db.DeleteEmployee(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(c, err)
		return
	}
	employeeMissing := errors.Is(err, storage.ErrNotFound)

	n, err := h.refs.Count(ctx, key)
	if err != nil {
		writeError(c, err)
		return
	}
	if employeeMissing && n == 0 {
		writeError(c, storage.ErrNotFound)
		return
	}
	if err := h.refs.DeleteByIdentity(ctx, key); err != nil {
		writeError(c, err)
		return
	}

	if h.snapshots != nil {
		if err := h.snapshots.DeleteSnapshots(ctx, key); err != nil {
			slog.Warn("delete enrollment snapshots", "employee_key", key, "error", err)
		}
	}
	if h.notify != nil {
		h.notify(key)
	}
	c.Status(http.StatusNoContent)
}

func employeeResponse(e models.Employee, refs int) dto.EmployeeResponse {
	return dto.EmployeeResponse{
		ID:             e.ID,
		EmployeeKey:    e.EmployeeKey,
		Name:           e.Name,
		Department:     e.Department,
		Position:       e.Position,
		Email:          e.Email,
		Active:         e.Active,
		ReferenceCount: refs,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}
