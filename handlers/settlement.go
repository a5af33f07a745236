package handlers

import (
	"net/http"

	"tripsplit-backend/money"
	"tripsplit-backend/utils"

	"github.com/gin-gonic/gin"
)

// GET /api/settlement
func (h *Handler) GetSettlement(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	cur := h.Settlement.DefaultCurrency()
	if code := c.Query("currency"); code != "" {
		parsed, err := money.ParseCurrency(code)
		if err != nil {
			respondError(c, err)
			return
		}
		cur = parsed
	}

	report, err := h.Settlement.Report(c.Request.Context(), userID, cur)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", report)
}
