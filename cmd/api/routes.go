package main

import (
	"github.com/gin-gonic/gin"

	"github.com/attachtrack/attachtrack-api/internal/handlers"
	"github.com/attachtrack/attachtrack-api/internal/middleware"
	"github.com/attachtrack/attachtrack-api/internal/models"
	"github.com/attachtrack/attachtrack-api/internal/services"
)

// Route allow-lists. Services re-check ownership and role rules on every call.
var (
	anyRole     = models.AllRoles
	adminOnly   = []models.Role{models.RoleAdministrator}
	studentOnly = []models.Role{models.RoleStudent}
	applicants  = []models.Role{models.RoleStudent, models.RoleAdministrator}
	reviewers   = []models.Role{models.RoleSchoolSupervisor, models.RoleHostSupervisor, models.RoleAdministrator}
)

type routeHandlers struct {
	auth         *handlers.AuthHandler
	admin        *handlers.AdminHandler
	positions    *handlers.PositionHandler
	applications *handlers.ApplicationHandler
	attachments  *handlers.AttachmentHandler
}

// registerAPIRoutes wires every /api/v1 endpoint with its role allow-list
func registerAPIRoutes(v1 *gin.RouterGroup, guard services.GuardInterface, loginLimiter gin.HandlerFunc, h routeHandlers) {
	allow := func(roles []models.Role) gin.HandlerFunc {
		return middleware.RequireRoles(guard, roles...)
	}

	auth := v1.Group("/auth")
	auth.POST("/register", loginLimiter, h.auth.Register)
	auth.POST("/login", loginLimiter, h.auth.Login)
	auth.POST("/refresh", loginLimiter, h.auth.Refresh)
	auth.POST("/logout", allow(anyRole), h.auth.Logout)
	auth.GET("/me", allow(anyRole), h.auth.Me)
	auth.POST("/password", allow(anyRole), h.auth.ChangePassword)

	admin := v1.Group("/admin", allow(adminOnly))
	admin.POST("/principals", h.admin.CreatePrincipal)
	admin.GET("/principals/:id", h.admin.GetPrincipal)
	admin.POST("/principals/:id/deactivate", h.admin.Deactivate)

	v1.POST("/positions", allow(adminOnly), h.positions.Create)
	v1.GET("/positions/:id", allow(anyRole), h.positions.Get)
	v1.PATCH("/positions/:id/capacity", allow(adminOnly), h.positions.UpdateCapacity)
	v1.PATCH("/positions/:id/active", allow(adminOnly), h.positions.SetActive)

	v1.POST("/applications", allow(applicants), h.applications.Create)
	v1.GET("/applications", allow(anyRole), h.applications.List)
	v1.GET("/applications/:id", allow(anyRole), h.applications.Get)
	v1.PATCH("/applications/:id/status", allow(reviewers), h.applications.UpdateStatus)
	v1.PATCH("/applications/:id/withdraw", allow(studentOnly), h.applications.Withdraw)
	v1.POST("/applications/:id/revoke", allow(adminOnly), h.applications.Revoke)

	v1.GET("/attachments/:id", allow(anyRole), h.attachments.Get)
	v1.GET("/students/:id/attachments", allow(anyRole), h.attachments.ListForStudent)
	v1.POST("/attachments/:id/terminate", allow(reviewers), h.attachments.Terminate)
}
