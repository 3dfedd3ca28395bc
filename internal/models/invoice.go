package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID          uint64
	ContainerID uint64
	Number      string
	Amount      decimal.Decimal
	Currency    string
	IssuedAt    time.Time
	CreatedAt   time.Time
}

type InvoiceCreateInput struct {
	ContainerID uint64
	Number      string
	Amount      decimal.Decimal
	Currency    string
	IssuedAt    time.Time
}
