package models

import (
	"time"
)

// SourceCredibility tracks how reliable an idea source has been.
// AccuracyHistory is the fraction of that source's closed ideas that were
// profitable; CredibilityScore blends an editorial prior with it.
type SourceCredibility struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(50);uniqueIndex;not null"`
	Type string `gorm:"type:varchar(20);not null;index"`

	PriorTrust       float64 `gorm:"not null;default:0.5"`
	CredibilityScore float64 `gorm:"not null;default:0.5"`
	AccuracyHistory  float64 `gorm:"not null;default:0"`
	TotalEntries     int64   `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SourceCredibility) TableName() string {
	return "source_credibility"
}
