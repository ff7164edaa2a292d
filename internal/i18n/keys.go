// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired      = "auth.required"
	KeyAuthInvalidToken  = "auth.invalid_token"
	KeyAuthInvalidFormat = "auth.invalid_format"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Content
	KeyContentNotFound = "content.not_found"
	KeyContentInactive = "content.inactive"
	KeyContentExpired  = "content.expired"

	// Purchases
	KeyPurchaseSuccess   = "purchase.success"
	KeyPurchaseSelf      = "purchase.self_purchase"
	KeyPurchaseDuplicate = "purchase.duplicate"

	// Payments
	KeyPaymentRequired          = "payment.required"
	KeyPaymentNoRailConfigured  = "payment.no_rail_configured"
	KeyPaymentInsufficientFunds = "payment.insufficient_funds"
	KeyPaymentAllRailsFailed    = "payment.all_rails_failed"
	KeyPaymentInvalidReceipt    = "payment.invalid_receipt"

	// Transactions
	KeyTransactionNotFound        = "transaction.not_found"
	KeyTransactionRefunded        = "transaction.refunded"
	KeyTransactionAlreadyRefunded = "transaction.already_refunded"
	KeyTransactionNotRefundable   = "transaction.not_refundable"

	// Affiliates
	KeyAffiliateNotFound    = "affiliate.not_found"
	KeyAffiliateCreated     = "affiliate.created"
	KeyAffiliateNotEligible = "affiliate.not_eligible"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
)
