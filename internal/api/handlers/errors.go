package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"upcycle-api-server/internal/apperr"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden, apperr.KindOrganizationBlocked:
		return http.StatusForbidden
	case apperr.KindInvalidTransition,
		apperr.KindInsufficientQuantity,
		apperr.KindMaterialUnavailable,
		apperr.KindDuplicateRequest,
		apperr.KindDuplicateFeedback,
		apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// RespondError writes {"error": {"message", "code"}}. Internal failures get
// a generic message; the real one goes to the request log.
func RespondError(c *gin.Context, err error) {
	_ = c.Error(err)
	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	} else if e := (*apperr.Error)(nil); errors.As(err, &e) && e.Msg != "" {
		msg = e.Msg
	}
	c.JSON(status, gin.H{"error": gin.H{"message": msg, "code": kind.String()}})
}

func badRequest(c *gin.Context, err error) {
	RespondError(c, apperr.New(apperr.KindValidation, "invalid request body: %v", err))
}
