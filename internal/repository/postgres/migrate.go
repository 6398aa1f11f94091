package postgres

import (
	"fmt"

	"abExperiments/domain"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates the experiment tables, including the
// unique (experiment_id, user_id, user_type) index and the cascading
// foreign key from assignments to experiments.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Experiment{}, &domain.Assignment{}); err != nil {
		return fmt.Errorf("failed to migrate experiment tables: %w", err)
	}
	return nil
}
