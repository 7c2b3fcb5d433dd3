package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"upcycle-api-server/internal/api/middleware"
	"upcycle-api-server/internal/marketplace"
)

type FeedbackHandler struct {
	Feedback *marketplace.FeedbackService
}

type CreateFeedbackPayload struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// CreateFeedback handles POST /requests/:id/feedback.
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var payload CreateFeedbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}

	fb, err := h.Feedback.Create(c.Request.Context(), actor, c.Param("id"), payload.Rating, payload.Comment)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

// GetFeedback handles GET /requests/:id/feedback.
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	fb, err := h.Feedback.ForRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}
