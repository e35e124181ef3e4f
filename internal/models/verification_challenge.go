package models

import "time"

// Verification purposes. At most one active challenge exists per
// (lecturer, purpose); issuing a new one replaces the prior challenge.
const (
	VerifyPurposeRegistration = "registration"
	VerifyPurposeEmailChange  = "email_change"
)

// VerificationChallenge stores a token/code pair proving control of an email
// address. The token is stored hashed; the short numeric code is kept as-is
// so it can be compared against user input. Redeeming a challenge deletes
// the row in the same transaction that applies its effect.
type VerificationChallenge struct {
	BaseModel

	LecturerID string    `gorm:"type:uuid;not null;uniqueIndex:idx_challenge_owner_purpose" json:"lecturer_id"`
	Lecturer   *Lecturer `gorm:"foreignKey:LecturerID;constraint:OnDelete:CASCADE" json:"-"`

	Purpose     string `gorm:"size:32;not null;uniqueIndex:idx_challenge_owner_purpose" json:"purpose"`
	TokenHash   string `gorm:"uniqueIndex;not null" json:"-"`
	Code        string `gorm:"size:6;not null;index" json:"-"`
	TargetEmail string `gorm:"not null" json:"target_email"`

	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the challenge is past its window at the given instant.
func (c *VerificationChallenge) Expired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}
