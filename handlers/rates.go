package handlers

import (
	"net/http"

	"tripsplit-backend/money"
	"tripsplit-backend/utils"

	"github.com/gin-gonic/gin"
)

type rateResponse struct {
	Pair string `json:"pair"`
	Rate string `json:"rate"`
}

// GET /api/rates
func (h *Handler) GetRates(c *gin.Context) {
	rates := h.Converter.Rates()
	out := make([]rateResponse, len(rates))
	for i, r := range rates {
		out[i] = rateResponse{Pair: r.Pair.String(), Rate: r.Rate.String()}
	}
	utils.SuccessResponse(c, http.StatusOK, "", out)
}

type convertQuery struct {
	Amount string `form:"amount" binding:"required"`
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
}

// GET /api/convert?amount=&from=&to=
func (h *Handler) Convert(c *gin.Context) {
	var q convertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	from, err := money.ParseCurrency(q.From)
	if err != nil {
		respondError(c, err)
		return
	}
	to, err := money.ParseCurrency(q.To)
	if err != nil {
		respondError(c, err)
		return
	}
	amount, err := money.Parse(q.Amount, from)
	if err != nil {
		respondError(c, err)
		return
	}

	converted, err := h.Converter.Convert(amount, to)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", gin.H{
		"source":    amount,
		"converted": converted,
		"display":   converted.Display(),
	})
}
