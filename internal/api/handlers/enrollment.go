package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/pkg/dto"
)

// ReferenceNotifier is told when an identity's references change; "" means
// every identity.
type ReferenceNotifier func(identity string)

type EnrollmentHandler struct {
	sessions *enroll.Sessions
	notify   ReferenceNotifier
}

func NewEnrollmentHandler(sessions *enroll.Sessions, notify ReferenceNotifier) *EnrollmentHandler {
	return &EnrollmentHandler{sessions: sessions, notify: notify}
}

// Create opens a session and starts capturing.
func (h *EnrollmentHandler) Create(c *gin.Context) {
	sess := h.sessions.Create()
	p, err := sess.Controller.Start(c.Request.Context())
	if err != nil {
		h.sessions.Remove(sess.ID)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, enrollmentResponse(sess.ID, p))
}

// Preview runs detection on the uploaded frame without capturing it.
func (h *EnrollmentHandler) Preview(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	img, err := readFrame(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := sess.PreviewFrame(c.Request.Context(), img)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrollmentResponse(sess.ID, p))
}

// Capture adds the uploaded frame's face to the session.
func (h *EnrollmentHandler) Capture(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	img, err := readFrame(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := sess.CaptureFrame(c.Request.Context(), img)
	if err != nil {
		if errors.Is(err, enroll.ErrNoFaceDetected) || errors.Is(err, enroll.ErrQuotaReached) {
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "session": enrollmentResponse(sess.ID, p)})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrollmentResponse(sess.ID, p))
}

// Reset discards the captures and restarts capturing.
func (h *EnrollmentHandler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.Controller.Reset()
	p, err := sess.Controller.Start(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, enrollmentResponse(sess.ID, p))
}

// Submit registers the employee and closes the session.
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	emp, err := sess.Controller.Submit(c.Request.Context(), enroll.Form{
		Name:        req.Name,
		EmployeeKey: req.EmployeeKey,
		Department:  req.Department,
		Position:    req.Position,
		Email:       req.Email,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.sessions.Remove(sess.ID)
	if h.notify != nil {
		h.notify(emp.EmployeeKey)
	}
	c.JSON(http.StatusCreated, employeeResponse(*emp, sess.Controller.Progress().Quota))
}

// Delete tears the session down and releases its device.
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if !h.sessions.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *EnrollmentHandler) session(c *gin.Context) (*enroll.Session, bool) {
	sess, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment session not found"})
	}
	return sess, ok
}

func statusFor(err error) int {
	if errors.Is(err, enroll.ErrQuotaReached) {
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func enrollmentResponse(id string, p enroll.Progress) dto.EnrollmentResponse {
	return dto.EnrollmentResponse{
		SessionID:    id,
		State:        p.State.String(),
		Captured:     p.Captured,
		Quota:        p.Quota,
		FaceDetected: p.Face != nil,
		Face:         faceBox(p.Face),
	}
}
