package handlers

import (
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/capture"
	"github.com/your-org/facecheck/internal/vision"
	"github.com/your-org/facecheck/pkg/dto"
)

const maxFrameBytes = 10 << 20

// readFrame decodes the uploaded frame, either the multipart field "image" or
// the raw request body.
func readFrame(c *gin.Context) (image.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes)

	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, _, err := c.Request.FormFile("image")
		if err != nil {
			return nil, fmt.Errorf("image file required: %w", err)
		}
		defer file.Close()
		r = file
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return capture.Decode(data)
}

func faceBox(d *vision.Descriptor) *dto.FaceBox {
	if d == nil {
		return nil
	}
	return &dto.FaceBox{
		X1: d.Location.Min.X, Y1: d.Location.Min.Y,
		X2: d.Location.Max.X, Y2: d.Location.Max.Y,
		Score: d.Score,
	}
}
