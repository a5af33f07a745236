package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"tripsplit-backend/ledger"
	"tripsplit-backend/money"
	"tripsplit-backend/services"
	"tripsplit-backend/utils"

	"github.com/gin-gonic/gin"
)

var validationErrors = []error{
	services.ErrEmptyParticipantSet,
	services.ErrDuplicateParticipant,
	services.ErrPayerRoleUnset,
	services.ErrPayerRole,
	services.ErrMissingShare,
	services.ErrUnknownParticipant,
	services.ErrNegativeShare,
	services.ErrInvalidMode,
	services.ErrEmptyLabel,
	services.ErrNonPositiveTotal,
	services.ErrMissingPayer,
	money.ErrCurrencyMismatch,
	money.ErrUnsupportedCurrency,
	money.ErrInvalidAmount,
	money.ErrInvalidDivisor,
}

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	var mismatch *services.SplitMismatchError
	switch {
	case errors.As(err, &mismatch):
		utils.ErrorResponseWithData(c, http.StatusUnprocessableEntity, err.Error(), gin.H{
			"difference": mismatch.Difference,
		})
	case errors.Is(err, ledger.ErrNotFound):
		utils.NotFound(c, "Expense not found")
	case errors.Is(err, ledger.ErrDuplicateID):
		utils.ErrorResponse(c, http.StatusConflict, "Expense already exists")
	case errors.Is(err, services.ErrForbidden):
		utils.Forbidden(c, "You are not part of this expense")
	case isValidation(err):
		utils.BadRequest(c, err.Error())
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		utils.InternalError(c, "Something went wrong")
	}
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
