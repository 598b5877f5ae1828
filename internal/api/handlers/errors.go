package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/internal/identity"
	"github.com/your-org/faceid/pkg/dto"
)

var kindStatus = map[identity.Kind]int{
	identity.KindValidation:          http.StatusBadRequest,
	identity.KindNoFace:              http.StatusUnprocessableEntity,
	identity.KindQuality:             http.StatusUnprocessableEntity,
	identity.KindDuplicateIdentifier: http.StatusConflict,
	identity.KindDuplicateFace:       http.StatusConflict,
	identity.KindNotFound:            http.StatusNotFound,
	identity.KindPersistence:         http.StatusInternalServerError,
	identity.KindSystem:              http.StatusInternalServerError,
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind identity.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	kind := identity.KindOf(err)
	status := StatusFor(kind)
	resp := dto.ErrorResponse{Error: err.Error(), Kind: kind.String()}

	var e *identity.Error
	if errors.As(err, &e) {
		resp.Stage = string(e.Stage)
		resp.Identifier = e.Identifier
		resp.DisplayName = e.DisplayName
		if e.Kind == identity.KindQuality || e.Kind == identity.KindDuplicateFace {
			measured, threshold := e.Measured, e.Threshold
			resp.Measured = &measured
			resp.Threshold = &threshold
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "kind", resp.Kind, "error", err)
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, Kind: identity.KindValidation.String()})
}
