// internal/handlers/purchase.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/paylink-backend/internal/i18n"
	"github.com/javajoker/paylink-backend/internal/models"
	"github.com/javajoker/paylink-backend/internal/services"
	"github.com/javajoker/paylink-backend/internal/utils"
	"github.com/javajoker/paylink-backend/pkg/x402"
)

const (
	HeaderAffiliateCode  = "X-Affiliate-Code"
	HeaderPaymentReceipt = "X-PAYMENT-RECEIPT"
)

type PurchaseHandler struct {
	purchaseService *services.PurchaseService
	publicURL       string
}

func NewPurchaseHandler(purchaseService *services.PurchaseService, publicURL string) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		publicURL:       strings.TrimRight(publicURL, "/"),
	}
}

// POST /listings/:id/purchase
func (h *PurchaseHandler) PurchaseListing(c *gin.Context) {
	h.purchase(c, models.ContentKindListing, c.Param("id"))
}

// POST /shared-links/:linkId/purchase
func (h *PurchaseHandler) PurchaseSharedLink(c *gin.Context) {
	h.purchase(c, models.ContentKindSharedLink, c.Param("linkId"))
}

func (h *PurchaseHandler) purchase(c *gin.Context, kind models.ContentKind, ref string) {
	lang := utils.GetLangFromContext(c)
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	code := strings.TrimSpace(c.GetHeader(HeaderAffiliateCode))
	if code != "" {
		if err := utils.ValidateVar(code, "affiliate_code"); err != nil {
			utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "affiliate code"), nil)
			return
		}
	}

	result, err := h.purchaseService.Purchase(c.Request.Context(), services.PurchaseRequest{
		BuyerID:       buyerID,
		Kind:          kind,
		Ref:           ref,
		AffiliateCode: code,
		PaymentProof:  c.GetHeader(x402.HeaderPayment),
		Receipt:       c.GetHeader(HeaderPaymentReceipt),
		ResourceURL:   h.publicURL + c.Request.URL.Path,
	})
	if err != nil {
		respondPurchaseError(c, err)
		return
	}

	if result.SettleResponse != nil {
		if header, err := x402.EncodeSettleResponse(result.SettleResponse); err == nil {
			c.Header(x402.HeaderPaymentResponse, header)
		}
	}
	if result.Receipt != "" {
		c.Header(HeaderPaymentReceipt, result.Receipt)
	}

	utils.CreatedResponse(c, result)
}

func respondPurchaseError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	var paymentRequired *services.PaymentRequiredError
	var configErr *services.ConfigurationError
	var uncommitted *services.UncommittedSettlementError

	switch {
	case errors.As(err, &paymentRequired):
		utils.PaymentChallengeResponse(c, paymentRequired.Challenge)

	case errors.As(err, &configErr):
		switch configErr.Reason {
		case services.ReasonNoRailConfigured:
			utils.PaymentRequiredResponse(c, "NO_RAIL_CONFIGURED", i18n.T(lang, i18n.KeyPaymentNoRailConfigured), configErr.Details())
		case services.ReasonInsufficientFunds:
			utils.PaymentRequiredResponse(c, "INSUFFICIENT_FUNDS", i18n.T(lang, i18n.KeyPaymentInsufficientFunds), configErr.Details())
		default:
			logrus.WithError(err).Error("All payment rails failed")
			utils.ErrorResponse(c, http.StatusInternalServerError, "PAYMENT_FAILED", i18n.T(lang, i18n.KeyPaymentAllRailsFailed), configErr.Details())
		}

	case errors.As(err, &uncommitted):
		if uncommitted.Receipt != "" {
			c.Header(HeaderPaymentReceipt, uncommitted.Receipt)
		}
		if errors.Is(err, services.ErrDuplicatePurchase) {
			utils.ConflictResponse(c, i18n.T(lang, i18n.KeyPurchaseDuplicate))
			return
		}
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))

	case errors.Is(err, services.ErrContentNotFound):
		utils.NotFoundResponse(c, "content")
	case errors.Is(err, services.ErrContentInactive):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyContentInactive), nil)
	case errors.Is(err, services.ErrSelfPurchase):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPurchaseSelf), nil)
	case errors.Is(err, services.ErrInvalidReceipt):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentInvalidReceipt), err.Error())
	case errors.Is(err, services.ErrContentExpired):
		utils.GoneResponse(c, i18n.T(lang, i18n.KeyContentExpired))
	case errors.Is(err, services.ErrDuplicatePurchase):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyPurchaseDuplicate))
	case errors.Is(err, services.ErrUserNotFound):
		utils.UnauthorizedResponse(c, "")

	default:
		logrus.WithError(err).Error("Purchase failed")
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
	}
}
