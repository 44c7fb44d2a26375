package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
	"github.com/your-org/facecheck/pkg/dto"
)

// writeError maps domain errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var vErr *enroll.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusUnprocessableEntity, dto.ValidationErrorResponse{
			Error:  vErr.Error(),
			Fields: vErr.Fields,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrAlreadyCheckedIn),
		errors.Is(err, enroll.ErrQuotaReached),
		errors.Is(err, enroll.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, enroll.ErrQuotaNotMet),
		errors.Is(err, enroll.ErrNoFaceDetected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, vision.ErrNotReady),
		errors.Is(err, capture.ErrDevice):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
