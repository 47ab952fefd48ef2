package models

import "time"

const AuditTable = "ckt_audit_log"

const (
	AuditKeyTaken            = "key_taken"
	AuditKeyReturned         = "key_returned"
	AuditKeyCollectiveReturn = "key_collective_return"
	AuditKeyCreated          = "key_created"
	AuditKeyUpdated          = "key_updated"
	AuditKeyDeleted          = "key_deleted"
)

// AuditLogEntry is an immutable record of one key transition. The key fields
// are a snapshot taken at event time, so later renames don't rewrite history.
// Rows are only ever inserted.
type AuditLogEntry struct {
	ID        string `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Action    string `gorm:"size:40;not null;index" json:"action"`
	ActorID   string `gorm:"type:uuid;index" json:"actorId"`
	ActorName string `gorm:"size:255" json:"actorName"`

	KeyNumber   string `gorm:"size:60;index" json:"keyNumber"`
	KeyName     string `gorm:"size:200" json:"keyName"`
	KeyLocation string `gorm:"size:200" json:"keyLocation"`

	// Set when someone other than the holder performed the action
	// (collective or QR-mediated return).
	OriginalHolderID   *string `gorm:"type:uuid;index" json:"originalHolderId,omitempty"`
	OriginalHolderName *string `gorm:"size:255" json:"originalHolderName,omitempty"`

	Reason          *string   `json:"reason,omitempty"`
	SourceIP        string    `gorm:"size:45" json:"sourceIp,omitempty"`
	QRCorrelationID *string   `gorm:"size:64;index" json:"qrCorrelationId,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLogEntry) TableName() string { return AuditTable }
