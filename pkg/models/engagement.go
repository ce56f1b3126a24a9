package models

import "time"

// Rating is a user's star rating for a content item. One per (user, content).
type Rating struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_rating_user_content" json:"user_id"`
	ContentID string    `gorm:"size:36;not null;uniqueIndex:idx_rating_user_content" json:"content_id"`
	Stars     int       `gorm:"not null" json:"stars"`
	Comment   string    `gorm:"size:2048" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Rating.
func (Rating) TableName() string {
	return "ratings"
}

// Favorite bookmarks a content item for a user.
type Favorite struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_favorite_user_content" json:"user_id"`
	ContentID string    `gorm:"size:36;not null;uniqueIndex:idx_favorite_user_content" json:"content_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Favorite.
func (Favorite) TableName() string {
	return "favorites"
}

// Notification is an in-app message for a user. Delivery to external
// channels (email, push) happens outside this service.
type Notification struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:36;not null;index" json:"user_id"`
	Title     string     `gorm:"not null;size:255" json:"title"`
	Body      string     `gorm:"size:4096" json:"body,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for Notification.
func (Notification) TableName() string {
	return "notifications"
}

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "open"
	TicketAnswered TicketStatus = "answered"
	TicketClosed   TicketStatus = "closed"
)

// SupportTicket is a user-filed support request.
type SupportTicket struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	UserID    string       `gorm:"size:36;not null;index" json:"user_id"`
	Subject   string       `gorm:"not null;size:255" json:"subject"`
	Body      string       `gorm:"size:8192" json:"body,omitempty"`
	Status    TicketStatus `gorm:"size:20;default:open;index" json:"status"`
	Answer    string       `gorm:"size:8192" json:"answer,omitempty"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for SupportTicket.
func (SupportTicket) TableName() string {
	return "support_tickets"
}
