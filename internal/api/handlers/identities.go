package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/pkg/dto"
)

const defaultPageSize = 50

// Registrar enrolls new identities.
type Registrar interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.Registration, error)
}

// Maintainer reads, deletes and audits identities.
type Maintainer interface {
	Get(ctx context.Context, identifier string) (*models.Identity, error)
	Image(ctx context.Context, identifier string) ([]byte, error)
	List(ctx context.Context, q models.ListQuery) ([]models.Identity, int, error)
	DeleteOne(ctx context.Context, key string, opts identity.DeleteOptions) (*identity.DeleteResult, error)
	DeleteMany(ctx context.Context, keys []string, opts identity.DeleteOptions) (*identity.BatchResult, error)
	Check(ctx context.Context) (*identity.IntegrityReport, error)
	Stats(ctx context.Context) (models.Stats, error)
}

type IdentityHandler struct {
	registrar  Registrar
	maintainer Maintainer
}

func NewIdentityHandler(registrar Registrar, maintainer Maintainer) *IdentityHandler {
	return &IdentityHandler{registrar: registrar, maintainer: maintainer}
}

// Register accepts a multipart upload with name, image and the optional
// identifier and face_box fields.
func (h *IdentityHandler) Register(c *gin.Context) {
	imageData, ok := readUpload(c)
	if !ok {
		return
	}

	box, err := parseFaceBox(c.PostForm("face_box"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	h.register(c, identity.RegisterRequest{
		DisplayName:  c.PostForm("name"),
		Identifier:   strings.TrimSpace(c.PostForm("identifier")),
		Image:        imageData,
		TargetRegion: box,
	})
}

// RegisterBase64 accepts the same registration as JSON with a base64 image.
func (h *IdentityHandler) RegisterBase64(c *gin.Context) {
	var req dto.RegisterBase64Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var box *models.Box
	if req.FaceBox != nil {
		box = &models.Box{X1: req.FaceBox.X1, Y1: req.FaceBox.Y1, X2: req.FaceBox.X2, Y2: req.FaceBox.Y2}
	}

	h.register(c, identity.RegisterRequest{
		DisplayName:  req.Name,
		Identifier:   strings.TrimSpace(req.Identifier),
		Image:        imageData,
		TargetRegion: box,
	})
}

func (h *IdentityHandler) register(c *gin.Context, req identity.RegisterRequest) {
	reg, err := h.registrar.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterResponse{
		Success:       true,
		Identifier:    reg.Identifier,
		DisplayName:   reg.DisplayName,
		CreatedAt:     reg.CreatedAt.UTC().Format(time.RFC3339),
		ImageRef:      reg.ImageRef,
		EmbeddingRef:  reg.EmbeddingRef,
		Confidence:    reg.Confidence,
		FacesDetected: reg.FacesDetected,
	})
}

func (h *IdentityHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}

	items, total, err := h.maintainer.List(c.Request.Context(), models.ListQuery{
		Search:   strings.TrimSpace(q.Search),
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.IdentityListResponse{
		Identities: make([]dto.IdentityResponse, 0, len(items)),
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
	}
	for i := range items {
		resp.Identities = append(resp.Identities, toIdentityResponse(&items[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *IdentityHandler) Get(c *gin.Context) {
	found, err := h.maintainer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIdentityResponse(found))
}

// Image returns the stored face crop.
func (h *IdentityHandler) Image(c *gin.Context) {
	data, err := h.maintainer.Image(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Delete removes one identity by identifier, falling back to display name.
func (h *IdentityHandler) Delete(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.Query("dry_run"))
	res, err := h.maintainer.DeleteOne(c.Request.Context(), c.Param("id"), identity.DeleteOptions{DryRun: dryRun})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *IdentityHandler) DeleteMany(c *gin.Context) {
	var req dto.DeleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := h.maintainer.DeleteMany(c.Request.Context(), req.Identifiers, identity.DeleteOptions{DryRun: req.DryRun})
	if err != nil {
		respondError(c, err)
		return
	}

	// Partial failures are reported in the body; 207 tells clients to look.
	status := http.StatusOK
	if !res.Success {
		status = http.StatusMultiStatus
	}
	c.JSON(status, res)
}

func (h *IdentityHandler) Integrity(c *gin.Context) {
	report, err := h.maintainer.Check(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *IdentityHandler) Stats(c *gin.Context) {
	st, err := h.maintainer.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func toIdentityResponse(i *models.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		Identifier:  i.Identifier,
		DisplayName: i.DisplayName,
		ImageURL:    fmt.Sprintf("/v1/identities/%s/image", i.Identifier),
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   i.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// readUpload reads the multipart "image" file, writing a 400 response and
// returning false when it is missing or exceeds the body limit.
func readUpload(c *gin.Context) ([]byte, bool) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "image too large", Kind: identity.KindValidation.String()})
			return nil, false
		}
		badRequest(c, "image file required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, "read image failed")
		return nil, false
	}
	if len(data) == 0 {
		badRequest(c, "image file is empty")
		return nil, false
	}
	return data, true
}

// parseFaceBox accepts "" (no target), a JSON array [x1,y1,x2,y2] or a JSON
// object with x1, y1, x2 and y2.
func parseFaceBox(raw string) (*models.Box, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "[") {
		var coords []float64
		if err := json.Unmarshal([]byte(raw), &coords); err != nil || len(coords) != 4 {
			return nil, fmt.Errorf("face_box must be [x1,y1,x2,y2]")
		}
		return &models.Box{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}, nil
	}

	var b dto.Box
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("face_box must be [x1,y1,x2,y2] or {\"x1\":..}: %w", err)
	}
	return &models.Box{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2}, nil
}

// decodeBase64Image accepts standard or URL-safe base64, optionally as a
// data URL ("data:image/jpeg;base64,...").
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = payload
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, nil
		}
	}
	return nil, fmt.Errorf("image is not valid base64")
}
