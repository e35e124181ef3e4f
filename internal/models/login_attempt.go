package models

import "time"

// Attempt ledger scopes. Distinct scopes keep rate limits from
// cross-contaminating between flows.
const (
	AttemptScopeLogin        = "login"
	AttemptScopeResendVerify = "resend_verification"
	AttemptScopeRegistration = "registration"
)

// LoginAttempt is an append-only ledger row recording one authentication or
// verification attempt. Rows are never mutated; old rows are purged by the
// maintenance cleaner after the retention window.
type LoginAttempt struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	Scope      string  `gorm:"size:32;not null;index:idx_attempt_scope_time" json:"scope"`
	IPAddress  string  `gorm:"size:45;index" json:"ip_address"`
	Username   *string `gorm:"size:150;index" json:"username,omitempty"`
	Successful bool    `gorm:"not null;default:false" json:"successful"`

	CreatedAt time.Time `gorm:"index:idx_attempt_scope_time" json:"created_at"`
}
