package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"upcycle-api-server/internal/api/middleware"
	"upcycle-api-server/internal/apperr"
	"upcycle-api-server/internal/marketplace"
)

// MaxEvidenceSize caps uploaded evidence files.
const MaxEvidenceSize = 10 << 20

type ReportHandler struct {
	Reports *marketplace.ReportService
}

type CreateReportPayload struct {
	Reason      string `json:"reason" binding:"required"`
	Description string `json:"description"`
}

// CreateReport handles POST /requests/:id/reports.
func (h *ReportHandler) CreateReport(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var payload CreateReportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, err)
		return
	}

	rep, err := h.Reports.Create(c.Request.Context(), actor, c.Param("id"), payload.Reason, payload.Description)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

// GetOrganizationReports handles GET /org/reports.
func (h *ReportHandler) GetOrganizationReports(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	reps, err := h.Reports.ListForOrganization(c.Request.Context(), actor)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reps)
}

// UploadEvidence handles POST /reports/:id/evidence with a multipart "file".
func (h *ReportHandler) UploadEvidence(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, apperr.Wrap(apperr.KindValidation, err, "file is required"))
		return
	}
	if fileHeader.Size > MaxEvidenceSize {
		RespondError(c, apperr.New(apperr.KindValidation, "file exceeds %d bytes", MaxEvidenceSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, fmt.Errorf("open uploaded file: %w", err))
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	rep, err := h.Reports.AttachEvidence(c.Request.Context(), actor, c.Param("id"), fileHeader.Filename, contentType, file)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
