// internal/handlers/affiliate.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/paylink-backend/internal/i18n"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/services"
	"github.com/javajoker/paylink-backend/internal/utils"
)

type AffiliateHandler struct {
	commissionService *services.CommissionService
	registry          services.ContentRegistry
}

func NewAffiliateHandler(commissionService *services.CommissionService, registry services.ContentRegistry) *AffiliateHandler {
	return &AffiliateHandler{
		commissionService: commissionService,
		registry:          registry,
	}
}

type CreateAffiliateRequest struct {
	ContentKind models.ContentKind `json:"content_kind" validate:"required,oneof=listing shared_link"`
	ContentRef  string             `json:"content_ref" validate:"required,max=64"`
}

// POST /affiliates
func (h *AffiliateHandler) CreateAffiliate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	content, err := h.registry.Resolve(c.Request.Context(), req.ContentKind, req.ContentRef)
	if err != nil {
		if errors.Is(err, services.ErrContentNotFound) {
			utils.NotFoundResponse(c, "content")
			return
		}
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	affiliate, err := h.commissionService.CreateAffiliate(c.Request.Context(), userID, content)
	if err != nil {
		if errors.Is(err, services.ErrAffiliateNotEligible) {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAffiliateNotEligible), nil)
			return
		}
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	c.JSON(http.StatusCreated, utils.APIResponse{
		Success: true,
		Data:    affiliate,
		Meta:    gin.H{"message": i18n.T(lang, i18n.KeyAffiliateCreated)},
	})
}

// GET /affiliates/code/:code
func (h *AffiliateHandler) LookupCode(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	code := c.Param("code")
	if err := utils.ValidateVar(code, "affiliate_code"); err != nil {
		utils.NotFoundResponse(c, "affiliate")
		return
	}

	affiliate, err := h.commissionService.LookupCode(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, services.ErrAffiliateNotFound) {
			utils.NotFoundResponse(c, "affiliate")
			return
		}
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	// Public view: earnings stay private.
	utils.SuccessResponse(c, gin.H{
		"code":            affiliate.Code,
		"content_kind":    affiliate.ContentKind,
		"content_id":      affiliate.ContentID,
		"commission_rate": affiliate.CommissionRate,
	})
}

// GET /affiliates/commissions
func (h *AffiliateHandler) ListCommissions(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	commissions, total, err := h.commissionService.ListForAffiliateUser(c.Request.Context(), userID, params)
	if err != nil {
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(commissions, total, params))
}
