package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carwash/internal/services"
)

type VerifyHandler struct {
	OTP *services.OTPService
}

func NewVerifyHandler(s *services.OTPService) *VerifyHandler { return &VerifyHandler{OTP: s} }

// POST /kyc/phone/send
func (h *VerifyHandler) SendPhone(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := getUserAndRole(c)
	if err := h.OTP.SendPhoneOTP(c.Request.Context(), userID, req.Phone); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true, "message": "SMS sent"})
}

// POST /kyc/phone/verify
func (h *VerifyHandler) VerifyPhone(c *gin.Context) {
	var req struct {
		Phone string `json:"phone" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := getUserAndRole(c)
	if err := h.OTP.VerifyPhoneOTP(c.Request.Context(), userID, req.Phone, req.Code, auditMeta(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Phone verified"})
}

// POST /kyc/email/send
func (h *VerifyHandler) SendEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := getUserAndRole(c)
	if err := h.OTP.SendEmailVerification(c.Request.Context(), userID, req.Email); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true, "message": "Verification email sent"})
}

// POST /kyc/email/verify
func (h *VerifyHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Code  string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, _ := getUserAndRole(c)
	id, err := h.OTP.VerifyEmail(c.Request.Context(), userID, req.Email, req.Code, auditMeta(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Email verified", "user_id": id})
}
