package models

import (
	"time"
)

// Agent run states, in default stage precedence order.
const (
	AgentStatusError   = "error"
	AgentStatusRunning = "running"
	AgentStatusIdle    = "idle"
)

// Agent is a registry record for a named autonomous agent. Created at
// registry init, mutated on every scheduler tick or manual start/stop,
// never deleted.
type Agent struct {
	Name        string `gorm:"type:varchar(50);primaryKey"`
	DisplayName string `gorm:"type:varchar(100);not null"`

	Status      string `gorm:"type:varchar(10);not null;default:'idle';index"`
	CurrentTask string `gorm:"type:varchar(200)"`

	LastRunAt     *time.Time `gorm:"type:timestamptz"`
	RunCount      int64      `gorm:"not null;default:0"`
	ErrorCount    int64      `gorm:"not null;default:0"`
	UptimeSeconds int64      `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Agent) TableName() string {
	return "agents"
}
