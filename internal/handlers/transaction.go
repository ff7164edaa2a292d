// internal/handlers/transaction.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/paylink-backend/internal/i18n"
	"github.com/javajoker/paylink-backend/internal/services"
	"github.com/javajoker/paylink-backend/internal/utils"
)

type TransactionHandler struct {
	ledgerService *services.LedgerService
}

func NewTransactionHandler(ledgerService *services.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: ledgerService,
	}
}

// GET /transactions
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var filter services.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "query"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&filter)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	params := utils.GetPaginationParams(c)
	transactions, total, err := h.ledgerService.History(c.Request.Context(), userID, filter, params)
	if err != nil {
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(transactions, total, params))
}

// GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "transaction ID"), nil)
		return
	}

	transaction, err := h.ledgerService.Get(c.Request.Context(), transactionID)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			utils.NotFoundResponse(c, "transaction")
			return
		}
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	// Other users' transactions are reported as missing.
	if transaction.BuyerID != userID && transaction.SellerID != userID {
		utils.NotFoundResponse(c, "transaction")
		return
	}

	utils.SuccessResponse(c, transaction)
}
