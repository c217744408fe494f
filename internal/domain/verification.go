package domain

import "time"

// UserVerification is the durable record of an in-flight push-identity
// verification. PK: user_id — at most one active record per user;
// a new request overwrites any prior one (last request wins).
// The code itself is stored bcrypt-hashed, never in the clear.
type UserVerification struct {
	UserID     string `json:"user_id" dynamodbav:"user_id"`
	CodeHash   string `json:"-" dynamodbav:"code_hash"`
	PushTarget string `json:"push_target" dynamodbav:"push_target"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"` // epoch ms
	TTL        int64  `json:"-" dynamodbav:"ttl"`                 // epoch s, DynamoDB TTL attribute
	Attempts   int    `json:"attempts" dynamodbav:"attempts"`
	Verified   bool   `json:"verified" dynamodbav:"verified"`
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"` // epoch ms
	UpdatedAt  int64  `json:"updated_at" dynamodbav:"updated_at"` // epoch ms
}

// Expired reports whether the record is past its expiry at the given time.
func (v *UserVerification) Expired(now time.Time) bool {
	return now.UnixMilli() > v.ExpiresAt
}

// VerificationSecret mirrors the hot part of UserVerification in the
// distributed cache for the short confirm window. The cache TTL matches
// the record expiry, so absence means "expired or never requested".
type VerificationSecret struct {
	CodeHash   string `json:"code_hash"`
	PushTarget string `json:"push_target"`
	IssuedAt   int64  `json:"issued_at"`  // epoch ms
	ExpiresAt  int64  `json:"expires_at"` // epoch ms
}

type RequestCodeRequest struct {
	PushTarget string `json:"push_target" validate:"required"`
}

type ConfirmCodeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}
