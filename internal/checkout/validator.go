package checkout

import (
	"fmt"

	"checkout-service/internal/models"
)

// ValidationResult lists every violated rule; OK is true only when Errors is
// empty.
type ValidationResult struct {
	OK     bool
	Errors []string
}

// Validate checks a cart and address for checkout readiness. Every rule runs
// regardless of earlier failures. No side effects.
func Validate(cart *models.Cart, addressID int64) ValidationResult {
	var errs []string

	if addressID == 0 {
		errs = append(errs, "shipping address is required")
	}

	if cart == nil || len(cart.Items) == 0 {
		errs = append(errs, "cart is empty")
	}

	if cart != nil {
		for _, item := range cart.Items {
			if item.UnitPrice <= 0 {
				errs = append(errs, fmt.Sprintf("product %d has an invalid price", item.ProductID))
			}
		}
		if cart.Total <= 0 {
			errs = append(errs, "cart total must be positive")
		}
	}

	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}
