package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"carwash/internal/authz"
	"carwash/internal/handlers"
	"carwash/internal/middleware"
)

type Handlers struct {
	Health        *handlers.HealthHandler
	Profile       *handlers.ProfileHandler
	Document      *handlers.DocumentHandler
	Verify        *handlers.VerifyHandler
	KYC           *handlers.KYCHandler
	Notifications *handlers.NotificationHandler
	Metrics       http.Handler
}

func SetupRoutes(r *gin.Engine, h Handlers, jwtSecret []byte) *gin.Engine {
	// ---- public
	r.GET("/healthz", h.Health.Health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// ---- protected
	r.Use(middleware.AuthMiddleware(jwtSecret))

	kyc := r.Group("/kyc", middleware.RequireRoles(authz.RoleCustomer, authz.RoleDetailer, authz.RoleOwner))
	{
		kyc.GET("/profile", h.Profile.GetProfile)
		kyc.POST("/profile", h.Profile.CreateProfile)
		kyc.PUT("/profile", h.Profile.UpdateProfile)

		kyc.GET("/status", h.KYC.Status)
		kyc.POST("/resubmit", h.KYC.Resubmit)

		kyc.POST("/documents", h.Document.Upload)
		kyc.GET("/documents", h.Document.List)
		kyc.POST("/documents/upload", h.Document.UploadFile)
		kyc.GET("/documents/:id", h.Document.Get)
		kyc.DELETE("/documents/:id", h.Document.Delete)

		kyc.POST("/phone/send", h.Verify.SendPhone)
		kyc.POST("/phone/verify", h.Verify.VerifyPhone)
		kyc.POST("/email/send", h.Verify.SendEmail)
		kyc.POST("/email/verify", h.Verify.VerifyEmail)
	}

	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.Notifications.List)
		notifications.POST("/:id/read", h.Notifications.MarkRead)
	}

	// ADMIN
	admin := r.Group("/admin/kyc", middleware.RequireRoles(authz.RoleAdmin))
	{
		admin.GET("/pending", h.KYC.ListPending)
		admin.POST("/:user_id/review", h.KYC.Review)
		admin.GET("/:user_id/audit", h.KYC.AuditLog)
		admin.GET("/:user_id/report", h.KYC.Report)
		admin.POST("/documents/:id/reverify", h.Document.Reverify)
		admin.POST("/documents/:id/override", h.Document.Override)
	}

	return r
}
