package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash/internal/models"
	"carwash/internal/services"
)

type ProfileHandler struct {
	Service *services.ProfileService
}

func NewProfileHandler(s *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{Service: s}
}

// GetProfile godoc
// @Summary      KYC-профиль текущего пользователя
// @Tags         KYC
// @Produce      json
// @Success      200  {object}  models.KYCProfile
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /kyc/profile [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, _ := getUserAndRole(c)
	p, err := h.Service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProfile godoc
// @Summary      Создать KYC-профиль
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Param        profile  body      models.ProfileInput  true  "Поля профиля"
// @Success      201      {object}  models.KYCProfile
// @Failure      400      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Security     BearerAuth
// @Router       /kyc/profile [post]
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	var in models.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, role := getUserAndRole(c)
	p, err := h.Service.CreateProfile(c.Request.Context(), userID, role, in, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// UpdateProfile godoc
// @Summary      Частично обновить KYC-профиль
// @Description  Поля чужой роли игнорируются
// @Tags         KYC
// @Accept       json
// @Produce      json
// @Param        profile  body      models.ProfileInput  true  "Изменяемые поля"
// @Success      200      {object}  models.KYCProfile
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Security     BearerAuth
// @Router       /kyc/profile [put]
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var in models.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, role := getUserAndRole(c)
	p, err := h.Service.UpdateProfile(c.Request.Context(), userID, role, in, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
