package models

import "time"

// User represents a registered account. Superusers are operational
// accounts and are excluded from user listings.
type User struct {
	ID           string
	Handle       string
	Email        string
	DisplayName  string
	PasswordHash string `json:"-"`
	Superuser    bool
	CreatedAt    time.Time
}
