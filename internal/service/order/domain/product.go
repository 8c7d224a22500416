package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID       uint64
	Name     string
	SKU      string
	Price    decimal.Decimal
	Stock    int
	IsActive bool
}
