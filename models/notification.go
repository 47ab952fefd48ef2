package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const NotificationTable = "ckt_notifications"

const (
	NotifReminder      = "reminder"
	NotifOverdue       = "overdue"
	NotifTaken         = "taken"
	NotifReturned      = "returned"
	NotifSecurityAlert = "security_alert"
	NotifSystem        = "system"
)

const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is addressed to exactly one recipient. Delivery flags track
// which channels fired; the in-app channel is implicit in the row existing.
type Notification struct {
	ID       string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   string         `gorm:"type:uuid;index;not null" json:"userId"`
	Role     string         `gorm:"size:20" json:"role"`
	Type     string         `gorm:"size:30;not null;index" json:"type"`
	Priority string         `gorm:"size:20;not null;default:'normal'" json:"priority"`
	Title    string         `gorm:"size:255;not null" json:"title"`
	Message  string         `gorm:"type:text" json:"message"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	IsRead bool       `gorm:"not null;default:false;index" json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`

	SentInApp    bool `gorm:"not null;default:true" json:"sentInApp"`
	SentEmail    bool `gorm:"not null;default:false" json:"sentEmail"`
	SentRealtime bool `gorm:"not null;default:false" json:"sentRealtime"`

	ExpiresAt time.Time      `gorm:"index;not null" json:"expiresAt"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Notification) TableName() string { return NotificationTable }

// IsExpired is computed from ExpiresAt on read, never stored.
func (n *Notification) IsExpired(now time.Time) bool { return now.After(n.ExpiresAt) }
