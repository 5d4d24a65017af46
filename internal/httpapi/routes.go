package httpapi

import (
	"leadpool-crm/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register wires the API routes. authMW verifies access tokens; role checks
// are layered per group.
func (h Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	r.POST("/setup-admin", h.SetupAdmin)

	v1 := r.Group("/v1")

	login := v1.Group("/auth")
	login.Use(h.LoginLimiter.Middleware())
	{
		login.POST("/login/phone", h.LoginPhone)
		login.POST("/login/password", h.LoginPassword)
		login.POST("/refresh", h.Refresh)
	}

	authed := v1.Group("")
	authed.Use(authMW, rbac.RequireIdentity())
	{
		authed.GET("/me", h.Me)
		authed.GET("/stream", h.Stream)
	}

	team := authed.Group("")
	team.Use(rbac.RequireAnyRole(rbac.RoleTeam))
	{
		team.GET("/pool", h.Pool)
		team.POST("/pool/:id/accept", h.AcceptLead)
		team.POST("/leads/:id/release", h.ReleaseLead)
		team.PATCH("/leads/:id/status", h.UpdateStatus)
		team.POST("/leads/:id/followup", h.ScheduleFollowUp)
		team.POST("/leads/:id/activities", h.AddActivity)
		team.GET("/leads/:id/activities", h.LeadActivities)
		team.GET("/leads/:id/whatsapp", h.WhatsAppLink)
		team.GET("/leads/:id/call", h.CallLink)

		team.GET("/my/leads", h.MyLeads)
		team.GET("/my/followups", h.MyFollowUps)
		team.GET("/my/stats", h.MyStats)

		team.GET("/settings/whatsapp-template", h.WhatsAppTemplate)
	}

	admin := authed.Group("/admin")
	admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
	{
		admin.GET("/leads", h.ListLeads)
		admin.POST("/leads", h.CreateLead)
		admin.POST("/leads/quick-add", h.QuickAddLead)
		admin.POST("/leads/unassign-all", h.UnassignAll)
		admin.GET("/leads/export", h.ExportLeads)
		admin.GET("/leads/:id", h.GetLead)
		admin.PUT("/leads/:id", h.UpdateLead)
		admin.DELETE("/leads/:id", h.DeleteLead)

		admin.POST("/import/csv", h.ImportCSV)
		admin.POST("/sync", h.Sync)
		admin.GET("/sync/logs", h.SyncLogs)
		admin.GET("/sync/stats", h.SyncStats)

		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.DELETE("/users/:id", h.DeleteUser)
		admin.PATCH("/users/:id/status", h.SetUserStatus)

		admin.GET("/settings", h.ListSettings)
		admin.POST("/settings", h.PutSetting)
		admin.PUT("/settings/whatsapp-template", h.PutWhatsAppTemplate)

		admin.GET("/stats", h.AdminStats)
		admin.GET("/stats/activity", h.ActivityStats)
	}
}
