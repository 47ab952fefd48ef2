package models

import "time"

const UserTable = "ckt_users"

const (
	RoleFaculty  = "faculty"
	RoleSecurity = "security"
	RoleAdmin    = "admin"
)

// User is an actor: faculty borrow keys, security monitors and force-returns,
// admin manages everything. Role is exclusive, not hierarchical.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	DisplayName string `gorm:"size:255;not null" json:"displayName"`
	Role        string `gorm:"size:20;not null;default:'faculty';index" json:"role"`
	Department  string `gorm:"size:120" json:"department"`
	IsActive    bool   `gorm:"not null;default:true" json:"isActive"`
	Verified    bool   `gorm:"not null;default:false" json:"verified"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string { return UserTable }

func (u *User) Privileged() bool { return u.Role == RoleSecurity || u.Role == RoleAdmin }
