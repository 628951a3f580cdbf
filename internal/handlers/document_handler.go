package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash/internal/models"
	"carwash/internal/services"
)

type DocumentHandler struct {
	Service *services.DocumentService
}

func NewDocumentHandler(service *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// POST /kyc/documents
// @Summary      Загрузить KYC-документ
// @Description  Документ создаётся в статусе pending, проверка идёт асинхронно
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Param        document  body      models.UploadDocumentInput  true  "Документ"
// @Success      202       {object}  models.KYCDocument
// @Failure      400       {object}  map[string]string
// @Security     BearerAuth
// @Router       /kyc/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	var in models.UploadDocumentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := getUserAndRole(c)
	doc, err := h.Service.UploadDocument(c.Request.Context(), userID, in, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, doc)
}

// POST /kyc/documents/upload (multipart, поле "file")
func (h *DocumentHandler) UploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > 10<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	userID, _ := getUserAndRole(c)
	url, err := h.Service.UploadFile(c.Request.Context(), userID, fh.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// GET /kyc/documents
func (h *DocumentHandler) List(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	docs, err := h.Service.ListDocuments(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// GET /kyc/documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, _ := getUserAndRole(c)
	doc, err := h.Service.GetDocument(c.Request.Context(), id, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DELETE /kyc/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	userID, _ := getUserAndRole(c)
	if err := h.Service.DeleteDocument(c.Request.Context(), id, userID, auditMeta(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /admin/kyc/documents/:id/reverify
func (h *DocumentHandler) Reverify(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	_, role := getUserAndRole(c)
	if err := h.Service.Reverify(c.Request.Context(), role, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "verification queued"})
}

// POST /admin/kyc/documents/:id/override
func (h *DocumentHandler) Override(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	adminID, role := getUserAndRole(c)
	doc, err := h.Service.OverrideDocument(c.Request.Context(), adminID, role, id, req.Notes, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}
