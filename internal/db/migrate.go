package db

import (
	"ideaflow/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Idea{},
		&models.Trade{},
		&models.Agent{},
		&models.LoopState{},
		&models.Portfolio{},
		&models.Position{},
		&models.SourceCredibility{},
	)
}
