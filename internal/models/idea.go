package models

import (
	"time"

	"gorm.io/datatypes"
)

// Idea lifecycle statuses. Status only changes through lifecycle.Machine.
const (
	IdeaStatusGenerated  = "generated"
	IdeaStatusValidating = "validating"
	IdeaStatusValidated  = "validated"
	IdeaStatusRejected   = "rejected"
	IdeaStatusExecuting  = "executing"
	IdeaStatusMonitoring = "monitoring"
	IdeaStatusClosed     = "closed"
)

const (
	IdeaSourceHuman = "human"
	IdeaSourceAgent = "agent"
)

// Outcome recorded when an idea is closed.
const (
	IdeaOutcomeProfitable   = "profitable"
	IdeaOutcomeUnprofitable = "unprofitable"
)

// TickerLeg is one instrument leg of an idea, stored in the tickers jsonb column.
type TickerLeg struct {
	Ticker     string  `json:"ticker"`
	Direction  string  `json:"direction"`
	Weight     float64 `json:"weight"`
	AssetClass string  `json:"asset_class,omitempty"`
}

type Idea struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	Title      string `gorm:"type:varchar(200);not null"`
	Thesis     string `gorm:"type:text"`
	AssetClass string `gorm:"type:varchar(30);index"`
	Timeframe  string `gorm:"type:varchar(30)"`

	Tickers    datatypes.JSON `gorm:"type:jsonb"`
	Conviction float64        `gorm:"not null;default:0"`

	Status      string `gorm:"type:varchar(20);not null;index;default:'generated'"`
	Source      string `gorm:"type:varchar(10);not null;index;default:'human'"`
	SourceAgent string `gorm:"type:varchar(50);index"`
	Tags        datatypes.JSON `gorm:"type:jsonb"`

	ValidationResult datatypes.JSON `gorm:"type:jsonb"`
	RetryEligible    bool           `gorm:"not null;default:false;index"`

	FeedbackUp   int64 `gorm:"not null;default:0"`
	FeedbackDown int64 `gorm:"not null;default:0"`

	// Outcome is set once, when the idea reaches closed.
	Outcome  string     `gorm:"type:varchar(20);index"`
	ClosedAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Idea) TableName() string {
	return "ideas"
}
