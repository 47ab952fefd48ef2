// models/key.go
package models

import "time"

const KeyTable = "ckt_keys"

const (
	KeyAvailable   = "available"
	KeyUnavailable = "unavailable"
)

// Key is one physical key. Status/holder/taken/returned are mutated only by
// the lifecycle transitions in db (take/return/QR); admin edits touch the
// descriptive fields.
type Key struct {
	ID             string `gorm:"type:uuid;primaryKey" json:"id"`
	KeyNumber      string `gorm:"size:60;uniqueIndex;not null" json:"keyNumber"`
	Name           string `gorm:"size:200;not null" json:"name"`
	Location       string `gorm:"size:200" json:"location"`
	Category       string `gorm:"size:60;index" json:"category"`
	Department     string `gorm:"size:120;index" json:"department"`
	FrequentlyUsed bool   `gorm:"not null;default:false" json:"frequentlyUsed"`
	IsActive       bool   `gorm:"not null;default:true;index" json:"isActive"`

	Status      string     `gorm:"size:20;not null;default:'available';index" json:"status"`
	HolderID    *string    `gorm:"type:uuid;index" json:"holderId,omitempty"`
	HolderName  *string    `gorm:"size:255" json:"holderName,omitempty"`
	HolderEmail *string    `gorm:"size:255" json:"holderEmail,omitempty"`
	HolderRole  *string    `gorm:"size:20" json:"holderRole,omitempty"`
	TakenAt     *time.Time `gorm:"index" json:"takenAt,omitempty"`
	ReturnedAt  *time.Time `json:"returnedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Key) TableName() string { return KeyTable }

func (k *Key) Held() bool { return k.Status == KeyUnavailable && k.HolderID != nil }
