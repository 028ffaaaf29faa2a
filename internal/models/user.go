package models

import "time"

// User is the slice of the account record this relay cares about:
// identity plus the heartbeat-based presence columns. Credentials and
// registration live elsewhere.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Online    bool      `json:"online"`
	LastSeen  time.Time `json:"lastSeen"`
	CreatedAt time.Time `json:"createdAt"`
}
