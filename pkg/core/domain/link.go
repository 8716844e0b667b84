package domain

import "time"

// Link represents a shortened URL. It is owned either by a user (UserID) or
// by an anonymous identity (AnonymousID), never both.
type Link struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id,omitempty"`
	AnonymousID *string   `json:"anonymous_id,omitempty"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ShortenResult is the reply to a link creation request.
type ShortenResult struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
	AnonymousID string `json:"anonymous_id,omitempty"`
}

type LinkList struct {
	Total int    `json:"total"`
	URLs  []Link `json:"urls"`
}
