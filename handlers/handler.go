package handlers

import (
	"tripsplit-backend/money"
	"tripsplit-backend/services"

	"github.com/gin-gonic/gin"
)

// Handler serves the HTTP API on top of the expense and settlement services.
type Handler struct {
	Expenses   *services.ExpenseService
	Settlement *services.SettlementService
	Converter  *money.Converter
	Directory  services.Directory // optional
	AppName    string
}

// Register mounts the API routes. auth guards everything except /health.
func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(auth)
	{
		// Rates
		api.GET("/rates", h.GetRates)
		api.GET("/convert", h.Convert)

		// Expenses
		api.POST("/expenses", h.CreateExpense)
		api.GET("/expenses", h.GetExpenses)
		api.GET("/expenses/:id", h.GetExpense)
		api.PUT("/expenses/:id", h.UpdateExpense)
		api.DELETE("/expenses/:id", h.DeleteExpense)

		// Settlement
		api.GET("/settlement", h.GetSettlement)
	}
}

// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": h.AppName,
	})
}
