package models

import "time"

// Account statuses driven by the KYC workflow.
const (
	UserStatusPending   = "pending"
	UserStatusActive    = "active"
	UserStatusRejected  = "rejected"
	UserStatusSuspended = "suspended"
)

type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
