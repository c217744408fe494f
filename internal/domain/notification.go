package domain

import "time"

// Notification is a per-user feed entry written after a successful send so
// the web UI can list unread items.
type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	ArticleID      string    `json:"article_id" dynamodbav:"article_id"`
	Channel        Channel   `json:"channel" dynamodbav:"channel"`
	Message        string    `json:"message" dynamodbav:"message"`
	Readed         int       `json:"readed" dynamodbav:"readed"` // legacy field name preserved
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// FailedNotification is a queue entry for a send that exhausted its
// immediate retry budget. Entries are replayed by the periodic sweep and
// dropped (archived) once RetryCount passes the ceiling.
type FailedNotification struct {
	EntryID       string  `json:"entry_id" dynamodbav:"entry_id"`
	UserID        string  `json:"user_id" dynamodbav:"user_id"`
	ArticleID     string  `json:"article_id" dynamodbav:"article_id"`
	Channel       Channel `json:"channel" dynamodbav:"channel"`
	Error         string  `json:"error" dynamodbav:"error"`
	Email         string  `json:"email,omitempty" dynamodbav:"email"`
	Destination   string  `json:"destination,omitempty" dynamodbav:"destination"`
	Subject       string  `json:"subject,omitempty" dynamodbav:"subject"`
	Message       string  `json:"message" dynamodbav:"message"`
	RetryCount    int     `json:"retry_count" dynamodbav:"retry_count"`
	LastRetryTime int64   `json:"last_retry_time" dynamodbav:"last_retry_time"` // epoch ms
	CreatedAt     int64   `json:"created_at" dynamodbav:"created_at"`           // epoch ms
}
