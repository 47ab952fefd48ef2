package db

import (
	"context"

	"keytrack/models"

	"github.com/google/uuid"
)

func (r *Repo) CreateReminderRun(ctx context.Context, run *models.ReminderRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return r.DB.WithContext(ctx).Create(run).Error
}

func (r *Repo) ListReminderRuns(ctx context.Context, limit int) ([]models.ReminderRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var runs []models.ReminderRun
	err := r.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
