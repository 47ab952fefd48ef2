package models

import "time"

const APIKeyTable = "ckt_api_keys"

// APIKey is a department-scoped credential for read-only integrations.
// Only a SHA-256 hash and a short prefix are stored; the raw key is shown
// once at creation.
type APIKey struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	KeyHash    string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	KeyPrefix  string     `gorm:"size:8;not null" json:"keyPrefix"`
	Label      string     `gorm:"size:120;not null" json:"label"`
	Department string     `gorm:"size:120;index" json:"department"`
	IsActive   bool       `gorm:"not null;default:true" json:"isActive"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	UsageCount int64      `gorm:"not null;default:0" json:"usageCount"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (APIKey) TableName() string { return APIKeyTable }

func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

func (k *APIKey) Usable(now time.Time) bool { return k.IsActive && !k.IsExpired(now) }
