package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tripsplit-backend/models"
	"tripsplit-backend/money"
	"tripsplit-backend/services"
	"tripsplit-backend/utils"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// POST /api/expenses
func (h *Handler) CreateExpense(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var req models.ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	in, err := toInput(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	expense, err := h.Expenses.Create(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Expense added", h.buildExpenseResponse(c.Request.Context(), expense, nil))
}

// GET /api/expenses
func (h *Handler) GetExpenses(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var query models.ListExpensesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	var pagination utils.PaginationQuery
	if err := c.ShouldBindQuery(&pagination); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	pagination.Normalize()

	from, to, err := parseRange(query.From, query.To)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	var display *money.Currency
	if query.Currency != "" {
		cur, err := money.ParseCurrency(query.Currency)
		if err != nil {
			respondError(c, err)
			return
		}
		display = &cur
	}

	var expenses []models.Expense
	for e := range h.Expenses.ListForParticipant(userID, from, to) {
		expenses = append(expenses, e)
	}

	resp := models.ExpenseListResponse{
		Expenses: []models.ExpenseResponse{},
		Total:    len(expenses),
	}
	if display != nil {
		total := money.Zero(*display)
		for _, e := range expenses {
			converted, err := h.Converter.Convert(e.Total, *display)
			if err != nil {
				respondError(c, err)
				return
			}
			total, _ = total.Add(converted)
		}
		resp.DisplayTotal = &total
	}

	start, end := pagination.Window(len(expenses))
	for _, e := range expenses[start:end] {
		resp.Expenses = append(resp.Expenses, h.buildExpenseResponse(c.Request.Context(), e, display))
	}

	utils.SuccessResponse(c, http.StatusOK, "", resp)
}

// GET /api/expenses/:id
func (h *Handler) GetExpense(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	expense, err := h.Expenses.Get(userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var display *money.Currency
	if code := c.Query("currency"); code != "" {
		cur, err := money.ParseCurrency(code)
		if err != nil {
			respondError(c, err)
			return
		}
		display = &cur
	}
	utils.SuccessResponse(c, http.StatusOK, "", h.buildExpenseResponse(c.Request.Context(), expense, display))
}

// PUT /api/expenses/:id
func (h *Handler) UpdateExpense(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	var req models.ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}
	in, err := toInput(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	expense, err := h.Expenses.Replace(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Expense updated", h.buildExpenseResponse(c.Request.Context(), expense, nil))
}

// DELETE /api/expenses/:id
func (h *Handler) DeleteExpense(c *gin.Context) {
	userID := utils.GetCurrentUserID(c)

	if err := h.Expenses.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Expense deleted", nil)
}

func toInput(userID string, req models.ExpenseRequest) (services.ExpenseInput, error) {
	cur, err := money.ParseCurrency(req.Currency)
	if err != nil {
		return services.ExpenseInput{}, err
	}
	total, err := money.Parse(req.Amount, cur)
	if err != nil {
		return services.ExpenseInput{}, err
	}

	payer := req.Payer
	if payer == "" {
		payer = userID
	}

	split := services.SplitRequest{
		Total:        total,
		Payer:        payer,
		PayerRole:    services.PayerRole(req.PayerRole),
		Participants: req.Participants,
		Mode:         services.SplitMode(req.Mode),
	}
	if len(req.Custom) > 0 {
		split.Custom = make(map[string]money.Money, len(req.Custom))
		for participant, amount := range req.Custom {
			share, err := money.Parse(amount, cur)
			if err != nil {
				return services.ExpenseInput{}, fmt.Errorf("share for %s: %w", participant, err)
			}
			split.Custom[participant] = share
		}
	}

	in := services.ExpenseInput{Label: req.Label, Split: split}
	if req.CreatedAt != nil {
		in.CreatedAt = *req.CreatedAt
	}
	return in, nil
}

// parseRange reads inclusive YYYY-MM-DD bounds; to covers its whole day.
func parseRange(fromText, toText string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if fromText != "" {
		t, err := time.Parse(dateLayout, fromText)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from date %q", fromText)
		}
		from = &t
	}
	if toText != "" {
		t, err := time.Parse(dateLayout, toText)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to date %q", toText)
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("to date is before from date")
	}
	return from, to, nil
}

func (h *Handler) buildExpenseResponse(ctx context.Context, e models.Expense, display *money.Currency) models.ExpenseResponse {
	resp := models.ExpenseResponse{
		Expense:   e,
		PayerName: h.name(ctx, e.Payer),
		Splits:    make([]models.SplitResponse, len(e.Splits)),
	}
	for i, s := range e.Splits {
		resp.Splits[i] = models.SplitResponse{
			Participant: s.Participant,
			Name:        h.name(ctx, s.Participant),
			Share:       s.Share,
			IsPayer:     s.Participant == e.Payer,
		}
	}
	if display != nil {
		if converted, err := h.Converter.Convert(e.Total, *display); err == nil {
			resp.Display = &converted
		}
	}
	return resp
}

func (h *Handler) name(ctx context.Context, userID string) string {
	if h.Directory == nil {
		return userID
	}
	p, err := h.Directory.Lookup(ctx, userID)
	if err != nil {
		return userID
	}
	return p.Name()
}
