package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PortfolioPreferences is stored in the preferences jsonb column.
// AllocationTargets maps asset class to target percentage and must sum to 100.
type PortfolioPreferences struct {
	AllocationTargets map[string]float64 `json:"allocation_targets"`
	RiskAppetite      string             `json:"risk_appetite,omitempty"`
	MaxPositionPct    float64            `json:"max_position_pct,omitempty"`
	RebalanceDriftPct float64            `json:"rebalance_drift_pct,omitempty"`
}

type Portfolio struct {
	ID   string `gorm:"type:varchar(36);primaryKey"`
	Name string `gorm:"type:varchar(100);not null"`

	Cash        decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Preferences datatypes.JSON  `gorm:"type:jsonb"`

	// ProposalToken identifies the latest computed proposal; approval with
	// any other token is rejected as stale.
	ProposalToken string `gorm:"type:varchar(36)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Portfolio) TableName() string {
	return "portfolios"
}

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

type Position struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PortfolioID string `gorm:"type:varchar(36);not null;index"`
	Symbol      string `gorm:"type:varchar(20);not null;index"`
	AssetClass  string `gorm:"type:varchar(30);index"`

	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	AvgEntryPrice decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CurrentPrice  decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	CostBasis     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0"`

	Status   string     `gorm:"type:varchar(20);not null;default:'open';index"`
	OpenedAt time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}
