package models

import "time"

// PhoneVerification — one row per sent SMS code. Only the bcrypt hash of the
// code is stored.
type PhoneVerification struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailVerification — one row per sent email code.
type EmailVerification struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
