package domain

import "time"

// Session is the server-side record behind an opaque bearer token. Role and
// Username are captured at issuance.
type Session struct {
	Token     string    `json:"-"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session has lapsed at now. A session is valid
// while now <= ExpiresAt.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
