package db

import (
	"context"
	"strings"
	"time"

	"keytrack/models"
)

func (r *Repo) CreateAuditEntry(ctx context.Context, e *models.AuditLogEntry) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

type AuditQuery struct {
	Action         string
	ActorID        string
	KeyNumber      string // substring match
	From, To       *time.Time
	CollectiveOnly bool
	Page           int
	Size           int
}

type PagedAudit struct {
	Total   int64                  `json:"total"`
	Entries []models.AuditLogEntry `json:"entries"`
}

func (r *Repo) ListAudit(ctx context.Context, q AuditQuery) (*PagedAudit, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 50
	}

	tx := r.DB.WithContext(ctx).Model(&models.AuditLogEntry{})
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	if s := strings.TrimSpace(q.KeyNumber); s != "" {
		tx = tx.Where("LOWER(key_number) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at <= ?", *q.To)
	}
	if q.CollectiveOnly {
		tx = tx.Where("action = ?", models.AuditKeyCollectiveReturn)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var entries []models.AuditLogEntry
	if err := tx.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return &PagedAudit{Total: total, Entries: entries}, nil
}
