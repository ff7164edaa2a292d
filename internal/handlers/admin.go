// internal/handlers/admin.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/paylink-backend/internal/i18n"
	"github.com/javajoker/paylink-backend/internal/services"
	"github.com/javajoker/paylink-backend/internal/utils"
)

type AdminHandler struct {
	purchaseService *services.PurchaseService
}

func NewAdminHandler(purchaseService *services.PurchaseService) *AdminHandler {
	return &AdminHandler{
		purchaseService: purchaseService,
	}
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// POST /admin/transactions/:id/refund
func (h *AdminHandler) ProcessRefund(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	transactionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "transaction ID"), nil)
		return
	}

	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	// Validate request
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	refund, err := h.purchaseService.Refund(c.Request.Context(), transactionID, adminID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTransactionNotFound):
			utils.NotFoundResponse(c, "transaction")
		case errors.Is(err, services.ErrNotRefundable):
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyTransactionNotRefundable), nil)
		case errors.Is(err, services.ErrAlreadyRefunded):
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyTransactionAlreadyRefunded))
		default:
			utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		}
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyTransactionRefunded),
		"refund":  refund,
	})
}
