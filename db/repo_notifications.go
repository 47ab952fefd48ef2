package db

import (
	"context"
	"time"

	"keytrack/apperr"
	"keytrack/models"

	"gorm.io/gorm"
)

func (r *Repo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.DB.WithContext(ctx).Create(n).Error
}

type ListNotificationsQuery struct {
	UnreadOnly bool
	Type       string
	Page       int
	Size       int
}

type PagedNotifications struct {
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
	Items  []models.Notification `json:"items"`
}

func (r *Repo) ListNotificationsForUser(ctx context.Context, userID string, q ListNotificationsQuery) (*PagedNotifications, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if q.UnreadOnly {
		tx = tx.Where("is_read = FALSE")
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}
	unread, err := r.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	var items []models.Notification
	if err := tx.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedNotifications{Total: total, Unread: unread, Items: items}, nil
}

func (r *Repo) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = FALSE", userID).
		Count(&n).Error
	return n, err
}

func (r *Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res := r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": gorm.Expr("NOW()")})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.E(apperr.KindNotFound, "notification not found")
	}
	return nil
}

func (r *Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = FALSE", userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": gorm.Expr("NOW()")})
	return res.RowsAffected, res.Error
}

// DeleteNotification is a soft delete scoped to the owner.
func (r *Repo) DeleteNotification(ctx context.Context, id, userID string) error {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.E(apperr.KindNotFound, "notification not found")
	}
	return nil
}

func (r *Repo) MarkEmailSent(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("sent_email", true).Error
}

func (r *Repo) MarkRealtimeSent(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("sent_realtime", true).Error
}

// PurgeExpiredNotifications hard-deletes everything past expiry, soft-deleted
// rows included. Deleting already-deleted rows is a no-op, so repeating the
// purge is always safe.
func (r *Repo) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Unscoped().
		Where("expires_at < ?", now).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
