package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	LoopIdea      = "idea_loop"
	LoopPortfolio = "portfolio_loop"
)

// LoopState persists the running flag, interval and iteration counter of a
// scheduler loop across restarts.
type LoopState struct {
	Name            string         `gorm:"type:varchar(30);primaryKey"`
	Running         bool           `gorm:"not null;default:false"`
	IntervalSeconds int64          `gorm:"not null;default:0"`
	Iterations      uint64         `gorm:"not null;default:0"`
	DomainFilter    datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (LoopState) TableName() string {
	return "loop_states"
}
