package services

import (
	"context"
	"time"

	"keytrack/db"
	"keytrack/models"
)

// The services talk to persistence through these interfaces; *db.Repo
// implements all of them, tests use in-memory fakes.

type KeyStore interface {
	FindKeyByNumber(ctx context.Context, keyNumber string) (*models.Key, error)
	TakeKey(ctx context.Context, keyNumber string, h db.Holder) (*models.Key, error)
	ReturnKey(ctx context.Context, keyNumber string, opts db.ReturnOptions) (*db.ReturnResult, error)
	ListUnreturnedKeys(ctx context.Context) ([]models.Key, error)
}

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	ListSecurityUsers(ctx context.Context) ([]models.User, error)
}

type AuditStore interface {
	CreateAuditEntry(ctx context.Context, e *models.AuditLogEntry) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	MarkEmailSent(ctx context.Context, id string) error
	MarkRealtimeSent(ctx context.Context, id string) error
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
}

type RunStore interface {
	CreateReminderRun(ctx context.Context, run *models.ReminderRun) error
}
