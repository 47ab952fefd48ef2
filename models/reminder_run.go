package models

import "time"

const ReminderRunTable = "ckt_reminder_runs"

// ReminderRun records one execution of the overdue sweep, forced or
// scheduled. The Redis run guard enforces once-per-slot; this table is the
// report of what each run actually did.
type ReminderRun struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	RunDate          string    `gorm:"size:10;index;not null" json:"runDate"`
	Slot             string    `gorm:"size:40;not null" json:"slot"`
	Forced           bool      `gorm:"not null;default:false" json:"forced"`
	FacultyNotified  int       `gorm:"not null;default:0" json:"facultyNotified"`
	SecurityNotified int       `gorm:"not null;default:0" json:"securityNotified"`
	TotalUnreturned  int       `gorm:"not null;default:0" json:"totalUnreturned"`
	Failures         *string   `gorm:"type:text" json:"failures,omitempty"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}

func (ReminderRun) TableName() string { return ReminderRunTable }
