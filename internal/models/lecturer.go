package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lecturer is the account that owns courses and collects attendance.
type Lecturer struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Department  string `gorm:"size:100" json:"department"`
	PhoneNumber string `gorm:"size:15" json:"phone_number"`

	EmailVerified bool `gorm:"default:false" json:"email_verified"`
	IsActive      bool `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	// Lockout state. FailedAttempts resets to zero on any successful
	// authentication; LockedUntil is cleared lazily once it has elapsed.
	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	Courses  []Course  `gorm:"foreignKey:LecturerID;constraint:OnDelete:CASCADE" json:"courses,omitempty"`
	Sessions []Session `gorm:"foreignKey:LecturerID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (l *Lecturer) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// FullName renders the display name used in outbound email.
func (l *Lecturer) FullName() string {
	switch {
	case l.FirstName == "" && l.LastName == "":
		return l.Username
	case l.LastName == "":
		return l.FirstName
	case l.FirstName == "":
		return l.LastName
	default:
		return l.FirstName + " " + l.LastName
	}
}
