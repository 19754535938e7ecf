package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// Trade is created as a side effect of an Idea entering executing, or by
// approval of a portfolio proposal. IdeaID is a non-owning back-reference.
type Trade struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement"`
	IdeaID      *string `gorm:"type:varchar(36);index"`
	PortfolioID *string `gorm:"type:varchar(36);index"`

	Symbol    string `gorm:"type:varchar(20);not null;index"`
	Direction string `gorm:"type:varchar(10);not null"`

	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	EntryPrice    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	FillPrice     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CurrentPrice  decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	TradingCost   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`

	Status   string     `gorm:"type:varchar(20);not null;default:'open';index"`
	OpenedAt time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
