package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"upcycle-api-server/internal/api/middleware"
	"upcycle-api-server/internal/marketplace"
	"upcycle-api-server/internal/models"
)

type RequestHandler struct {
	Engine *marketplace.Engine
}

type CreateRequestPayload struct {
	// Accepts a JSON number or string.
	Quantity decimal.Decimal `json:"quantity"`
	Message  string          `json:"message"`
}

type UpdateStatusPayload struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

// CreateRequest handles POST /materials/:id/requests.
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var payload CreateRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.Engine.CreateRequest(c.Request.Context(), actor, c.Param("id"), payload.Quantity, payload.Message)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// GetRequestsForMaterial handles GET /materials/:id/requests.
func (h *RequestHandler) GetRequestsForMaterial(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	reqs, err := h.Engine.GetRequestsForMaterial(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// GetRequest handles GET /requests/:id.
func (h *RequestHandler) GetRequest(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	req, err := h.Engine.GetRequest(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// UpdateStatus handles PUT /requests/:id/status.
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var payload UpdateStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}

	req, err := h.Engine.UpdateRequestStatus(c.Request.Context(), actor, c.Param("id"), payload.Status)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// GetOrganizationRequests handles GET /org/requests.
func (h *RequestHandler) GetOrganizationRequests(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	reqs, err := h.Engine.GetRequestsForOrganization(c.Request.Context(), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// MarkTransferred handles POST /materials/:id/transfer.
func (h *RequestHandler) MarkTransferred(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	m, err := h.Engine.MarkTransferred(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
