package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dm-service/internal/media"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEmptyPayload), errors.Is(err, media.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotSender), errors.Is(err, repositories.ErrNotReceiver):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrMessageNotFound), errors.Is(err, repositories.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, media.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.String("request_id", requestIDFromContext(c)),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": publicMessage(err)})
}

func publicMessage(err error) string {
	for _, known := range []error{
		models.ErrEmptyPayload,
		media.ErrInvalidImage,
		media.ErrUploadFailed,
		repositories.ErrNotSender,
		repositories.ErrNotReceiver,
		repositories.ErrMessageNotFound,
		repositories.ErrParticipantNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
