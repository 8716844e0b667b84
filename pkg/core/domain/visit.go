package domain

import "time"

// Visit represents a click on a short link
type Visit struct {
	ID        int64     `json:"id"`
	LinkID    int64     `json:"link_id"`
	Referer   string    `json:"referer"`
	UserAgent string    `json:"user_agent"`
	IPHash    string    `json:"ip_hash"` // Anonymized IP
	CreatedAt time.Time `json:"created_at"`
}
