package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/pkg/dto"
)

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*identity.Recognition, error)
}

type RecognizeHandler struct {
	recognizer Recognizer
}

func NewRecognizeHandler(recognizer Recognizer) *RecognizeHandler {
	return &RecognizeHandler{recognizer: recognizer}
}

// Recognize matches every face in a multipart "image" upload.
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	data, ok := readUpload(c)
	if !ok {
		return
	}
	h.recognize(c, data)
}

func (h *RecognizeHandler) RecognizeBase64(c *gin.Context) {
	var req dto.RecognizeBase64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	data, err := decodeBase64Image(req.Image)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.recognize(c, data)
}

func (h *RecognizeHandler) recognize(c *gin.Context, data []byte) {
	rec, err := h.recognizer.Recognize(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": rec})
}
