package handlers

import (
	"context"
	"errors"
	"image"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/face"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
	"github.com/your-org/facecheck/pkg/dto"
)

type Extractor interface {
	Extract(ctx context.Context, img image.Image) (*vision.Descriptor, error)
}

type RecognizeHandler struct {
	extractor Extractor
	refs      ReferenceStore
	employees EmployeeStore
	matcher   face.Matcher
}

func NewRecognizeHandler(extractor Extractor, refs ReferenceStore, employees EmployeeStore, threshold float64) *RecognizeHandler {
	return &RecognizeHandler{
		extractor: extractor,
		refs:      refs,
		employees: employees,
		matcher:   face.NewMatcher(threshold),
	}
}

// Recognize matches the uploaded frame against the current reference set.
// Attendance is not touched.
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	ctx := c.Request.Context()
	img, err := readFrame(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc, err := h.extractor.Extract(ctx, img)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := dto.RecognizeResponse{Threshold: h.matcher.Threshold}
	if desc == nil {
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.FaceDetected = true
	resp.Face = faceBox(desc)

	refs, err := h.refs.All(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	match, accepted := h.matcher.Match(desc.Embedding, refs)
	if match.Identity != "" {
		d := match.Distance
		resp.Distance = &d
		resp.Confidence = face.DisplayConfidence(d)
	}
	if accepted {
		resp.Matched = true
		resp.EmployeeKey = match.Identity
		e, err := h.employees.GetEmployee(ctx, match.Identity)
		switch {
		case err == nil:
			resp.Name = e.Name
			resp.Department = e.Department
		case !errors.Is(err, storage.ErrNotFound):
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}
