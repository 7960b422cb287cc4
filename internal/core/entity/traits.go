package entity

import (
	"context"

	"costledger/internal/core/apperror"
	"costledger/internal/core/types"
)

// CurrencyAware is a trait for documents priced in a transaction currency.
// ExchangeRate converts transaction amounts to the company base currency
// and is supplied by the document author.
type CurrencyAware struct {
	CurrencyCode string      `db:"currency_code" json:"currencyCode"`
	ExchangeRate types.Money `db:"exchange_rate" json:"exchangeRate"`
}

// ValidateCurrency ensures a currency and a positive rate are set.
func (c *CurrencyAware) ValidateCurrency(ctx context.Context) error {
	if c.CurrencyCode == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currencyCode")
	}
	if !c.ExchangeRate.IsPositive() {
		return apperror.NewValidation("exchange rate must be positive").
			WithDetail("field", "exchangeRate")
	}
	return nil
}

// ToBase converts an amount in the transaction currency to the base currency.
func (c *CurrencyAware) ToBase(amount types.Money) types.Money {
	if c.ExchangeRate.IsZero() {
		return amount
	}
	return amount.Mul(c.ExchangeRate)
}
