package domain

import "github.com/shopspring/decimal" // Exact money arithmetic

// ValidateAmount requires a positive amount with at most two decimal places.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Validation("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return Validation("amount must have at most two decimal places")
	}
	return nil
}
