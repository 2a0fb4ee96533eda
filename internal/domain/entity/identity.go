package entity

import "time"

// Identity is the locally stored user the console acts as
type Identity struct {
	UserID    string     `json:"user_id"`
	Name      string     `json:"name,omitempty"`
	Token     string     `json:"-"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	StoredAt  time.Time  `json:"stored_at"`
}

// Expired reports whether the credential is past its expiry at now
func (i *Identity) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
