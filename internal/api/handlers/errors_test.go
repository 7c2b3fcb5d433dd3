package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upcycle-api-server/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.KindNotFound:             http.StatusNotFound,
		apperr.KindForbidden:            http.StatusForbidden,
		apperr.KindOrganizationBlocked:  http.StatusForbidden,
		apperr.KindInvalidTransition:    http.StatusBadRequest,
		apperr.KindInsufficientQuantity: http.StatusBadRequest,
		apperr.KindMaterialUnavailable:  http.StatusBadRequest,
		apperr.KindDuplicateRequest:     http.StatusBadRequest,
		apperr.KindDuplicateFeedback:    http.StatusBadRequest,
		apperr.KindValidation:           http.StatusBadRequest,
		apperr.KindUnavailable:          http.StatusServiceUnavailable,
		apperr.KindUnknown:              http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func TestRespondErrorBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	respond := func(err error) (int, map[string]map[string]string) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		RespondError(c, err)
		var body map[string]map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return w.Code, body
	}

	code, body := respond(fmt.Errorf("handler: %w", apperr.New(apperr.KindInsufficientQuantity, "only 30 kg left")))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "only 30 kg left", body["error"]["message"])
	assert.Equal(t, "insufficient_quantity", body["error"]["code"])

	code, body = respond(apperr.Wrap(apperr.KindUnavailable, errors.New("dial tcp 10.0.0.3:27017"), "storage unavailable"))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage unavailable", body["error"]["message"])

	code, body = respond(errors.New("nil map write"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", body["error"]["message"])
}
