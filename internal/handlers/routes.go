package handlers

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts every endpoint on e.
func (h *Handlers) RegisterRoutes(e *echo.Echo) {
	auth := h.RequireToken()

	e.GET("/health", h.HealthCheck)

	e.POST("/principals", h.RegisterPrincipal)
	e.POST("/auth", h.Authenticate)
	e.GET("/principals/me", h.Me, auth)
	e.PUT("/principals/me/credential", h.RotateCredential, auth)

	e.GET("/contract", h.GetContract)
	e.POST("/contract", h.SetContract, auth, h.RequireAdmin)

	e.POST("/consignments", h.CreateConsignment, auth)
	e.PUT("/consignments/:id/status", h.UpdateStatus, auth)
	e.GET("/consignments/:id", h.GetConsignment)
	e.GET("/consignments/:id/history", h.GetHistory)
	e.GET("/consignments/:id/trail", h.GetTrail)
}
