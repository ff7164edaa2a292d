// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var affiliateCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("evm_address", validateEVMAddress)
	validate.RegisterValidation("affiliate_code", validateAffiliateCode)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateVar checks a single value against a tag expression.
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

func validateEVMAddress(fl validator.FieldLevel) bool {
	return IsValidAddress(fl.Field().String())
}

func validateAffiliateCode(fl validator.FieldLevel) bool {
	return affiliateCodePattern.MatchString(fl.Field().String())
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "evm_address":
		return e.Field() + " must be a 0x-prefixed 20 byte address"
	case "affiliate_code":
		return "Affiliate code must be 4-32 letters or digits"
	default:
		return e.Field() + " is invalid"
	}
}
