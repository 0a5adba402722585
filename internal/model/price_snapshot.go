package model

import "time"

// PriceSnapshot stores one monitor observation of a collateral.
type PriceSnapshot struct {
	Collateral       string    `json:"collateral"`
	ObservedAt       time.Time `json:"observed_at"`
	Status           Status    `json:"status"`
	WhenDefault      *uint64   `json:"when_default,omitempty"`
	ReferenceRate    string    `json:"reference_rate"`
	TotalBasketValue *string   `json:"total_basket_value,omitempty"`
	LPTokenPrice     *string   `json:"lp_token_price,omitempty"`
	TokenPrices      []string  `json:"token_prices,omitempty"`
	IsFallback       bool      `json:"is_fallback"`
	Price            string    `json:"price"`
}
