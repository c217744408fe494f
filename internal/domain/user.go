package domain

import "time"

// Channel identifies an outbound notification medium. Each channel has its
// own delivery semantics, provider limits, and failure modes.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelDiscord Channel = "discord"
	ChannelPush    Channel = "push"
)

type User struct {
	UserID   string `json:"id" dynamodbav:"user_id"`
	Username string `json:"username" dynamodbav:"username"`
	Email    string `json:"email" dynamodbav:"email"`
	Role     string `json:"role" dynamodbav:"role"`

	// Per-channel opt-in flags. Push stays off until the push identity
	// is verified through the code flow.
	EmailEnabled   bool `json:"email_enabled" dynamodbav:"email_enabled"`
	DiscordEnabled bool `json:"discord_enabled" dynamodbav:"discord_enabled"`
	PushEnabled    bool `json:"push_enabled" dynamodbav:"push_enabled"`

	// DiscordWebhook is the per-user DM webhook registered by the bot.
	DiscordWebhook string `json:"discord_webhook,omitempty" dynamodbav:"discord_webhook"`

	// PushTarget is the verified external messaging identity (an SNS
	// endpoint ARN or E.164 phone number). Empty until confirmed.
	PushTarget   string `json:"push_target,omitempty" dynamodbav:"push_target"`
	PushVerified bool   `json:"push_verified" dynamodbav:"push_verified"`

	Enable    int       `json:"enable" dynamodbav:"enable"` // 1 = active, 0 = disabled
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NotificationSettings is the mutable slice of User exposed through the
// settings endpoints. Pointer fields distinguish "unset" from "false".
type NotificationSettings struct {
	EmailEnabled   *bool `json:"email_enabled"`
	DiscordEnabled *bool `json:"discord_enabled"`
	PushEnabled    *bool `json:"push_enabled"`
}

// Settings returns the current per-channel flags as a value snapshot.
func (u *User) Settings() NotificationSettings {
	e, d, p := u.EmailEnabled, u.DiscordEnabled, u.PushEnabled
	return NotificationSettings{EmailEnabled: &e, DiscordEnabled: &d, PushEnabled: &p}
}

// WantsChannel reports whether the user should receive broadcasts on ch.
func (u *User) WantsChannel(ch Channel) bool {
	if u.Enable != 1 {
		return false
	}
	switch ch {
	case ChannelEmail:
		return u.EmailEnabled && u.Email != ""
	case ChannelDiscord:
		return u.DiscordEnabled && u.DiscordWebhook != ""
	case ChannelPush:
		return u.PushEnabled && u.PushVerified && u.PushTarget != ""
	}
	return false
}
