// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/javajoker/paylink-backend/internal/models"
)

// Purchase preconditions. Each maps to one HTTP status in the handlers.
var (
	ErrContentNotFound   = errors.New("content not found")
	ErrContentInactive   = errors.New("content is not active")
	ErrContentExpired    = errors.New("content has expired")
	ErrSelfPurchase      = errors.New("buyer cannot purchase their own content")
	ErrDuplicatePurchase = errors.New("content already purchased")
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrNotRefundable         = errors.New("only completed purchases can be refunded")
	ErrAlreadyRefunded       = errors.New("transaction already refunded")
	ErrAffiliateNotFound     = errors.New("affiliate not found")
	ErrAffiliateNotEligible  = errors.New("content does not accept affiliates")
	ErrInvalidReceipt        = errors.New("invalid settlement receipt")
	ErrInvalidSellerAddress  = errors.New("seller payout address is not a valid 0x address")
	ErrProvisionSourceAbsent = errors.New("source item not found")
)

type RailErrorKind string

const (
	RailErrorTransient         RailErrorKind = "transient"
	RailErrorInsufficientFunds RailErrorKind = "insufficient_funds"
	RailErrorMisconfigured     RailErrorKind = "misconfigured"
	RailErrorRejected          RailErrorKind = "rejected"
)

// RailError is a failed attempt on one payment rail. It triggers fallback to
// the next rail and is only surfaced once every rail is exhausted.
type RailError struct {
	Rail models.PaymentRail
	Kind RailErrorKind
	Err  error
}

func (e *RailError) Error() string {
	return fmt.Sprintf("%s rail failed (%s): %v", e.Rail, e.Kind, e.Err)
}

func (e *RailError) Unwrap() error {
	return e.Err
}

type ConfigurationErrorReason string

const (
	ReasonNoRailConfigured  ConfigurationErrorReason = "no_rail_configured"
	ReasonInsufficientFunds ConfigurationErrorReason = "insufficient_funds"
	ReasonAllRailsFailed    ConfigurationErrorReason = "all_rails_failed"
)

// ConfigurationError means no rail could settle the purchase.
type ConfigurationError struct {
	Reason ConfigurationErrorReason
	// Skipped lists rails that were not usable and why.
	Skipped map[string]string
	// Failures holds the attempts that were made.
	Failures []*RailError
}

func (e *ConfigurationError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("payment not possible: %s", e.Reason)
	}

	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("payment not possible: %s: %s", e.Reason, strings.Join(msgs, "; "))
}

// Details is the diagnostic payload returned to the client.
func (e *ConfigurationError) Details() map[string]interface{} {
	details := map[string]interface{}{
		"reason": e.Reason,
	}
	if len(e.Skipped) > 0 {
		details["unavailable_rails"] = e.Skipped
	}
	if len(e.Failures) > 0 {
		attempts := make([]map[string]string, 0, len(e.Failures))
		for _, f := range e.Failures {
			attempts = append(attempts, map[string]string{
				"rail":  string(f.Rail),
				"kind":  string(f.Kind),
				"error": f.Err.Error(),
			})
		}
		details["attempts"] = attempts
	}
	return details
}
