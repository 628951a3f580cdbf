package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carwash/internal/pdf"
	"carwash/internal/services"
)

type KYCHandler struct {
	KYC       *services.KYCService
	Profiles  *services.ProfileService
	Documents *services.DocumentService
	Audit     *services.AuditLogger
	Users     services.UserService
	PDF       pdf.Generator
}

func NewKYCHandler(kyc *services.KYCService, profiles *services.ProfileService, docs *services.DocumentService, audit *services.AuditLogger, users services.UserService, gen pdf.Generator) *KYCHandler {
	return &KYCHandler{KYC: kyc, Profiles: profiles, Documents: docs, Audit: audit, Users: users, PDF: gen}
}

// GET /kyc/status
// @Summary      Сводный KYC-статус
// @Tags         KYC
// @Produce      json
// @Success      200  {object}  models.KYCStatusReport
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /kyc/status [get]
func (h *KYCHandler) Status(c *gin.Context) {
	userID, role := getUserAndRole(c)
	report, err := h.KYC.GetStatus(c.Request.Context(), userID, role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /kyc/resubmit
func (h *KYCHandler) Resubmit(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	p, err := h.KYC.Resubmit(c.Request.Context(), userID, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ===== admin =====

// GET /admin/kyc/pending?limit=&offset=
func (h *KYCHandler) ListPending(c *gin.Context) {
	items, err := h.KYC.ListPending(c.Request.Context(), queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// POST /admin/kyc/:user_id/review
// @Summary      Решение админа по KYC
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        user_id  path      int     true  "ID пользователя"
// @Success      200      {object}  models.KYCProfile
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Security     BearerAuth
// @Router       /admin/kyc/{user_id}/review [post]
func (h *KYCHandler) Review(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	var req struct {
		Decision string `json:"decision" binding:"required"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID, role := getUserAndRole(c)
	p, err := h.KYC.Review(c.Request.Context(), adminID, role, int(userID), req.Decision, req.Notes, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /admin/kyc/:user_id/audit?limit=
func (h *KYCHandler) AuditLog(c *gin.Context) {
	userID, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	entries, err := h.Audit.GetLog(c.Request.Context(), int(userID), queryInt(c, "limit", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /admin/kyc/:user_id/report — PDF-досье
func (h *KYCHandler) Report(c *gin.Context) {
	id, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	userID := int(id)
	ctx := c.Request.Context()

	profile, err := h.Profiles.GetProfile(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	user, err := h.Users.GetUserByID(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	docs, err := h.Documents.ListDocuments(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	entries, err := h.Audit.GetLog(ctx, userID, 0)
	if err != nil {
		writeError(c, err)
		return
	}

	data, err := h.PDF.GenerateKYCReport(pdf.KYCReportData{
		User:        user,
		Profile:     profile,
		Documents:   docs,
		Audit:       entries,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="kyc_%d.pdf"`, userID))
	c.Data(http.StatusOK, "application/pdf", data)
}
