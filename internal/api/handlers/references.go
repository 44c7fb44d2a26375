package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/pkg/dto"
)

type ReferenceHandler struct {
	refs   ReferenceStore
	notify ReferenceNotifier
}

func NewReferenceHandler(refs ReferenceStore, notify ReferenceNotifier) *ReferenceHandler {
	return &ReferenceHandler{refs: refs, notify: notify}
}

// Get reports how many reference embeddings an identity has.
func (h *ReferenceHandler) Get(c *gin.Context) {
	key := c.Param("key")
	embs, err := h.refs.ByIdentity(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := dto.ReferenceSetResponse{EmployeeKey: key, Count: len(embs)}
	if len(embs) > 0 {
		resp.Dimension = len(embs[0])
	}
	c.JSON(http.StatusOK, resp)
}

// Clear deletes every reference record of every identity.
func (h *ReferenceHandler) Clear(c *gin.Context) {
	if err := h.refs.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	if h.notify != nil {
		h.notify("")
	}
	c.Status(http.StatusNoContent)
}
