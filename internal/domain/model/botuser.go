package model

import "time"

// BotUser is a service account owning status updates and authenticating
// provider callbacks. One is created lazily per provider on first use.
type BotUser struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Email     string
	SendEmail bool   // Outbound notification email; disabled for bots.
	AvatarURL string // Set from the provider's icon set; best effort.
	CreatedAt time.Time
}

// BotProfile describes the bot identity a provider wants created for
// itself. The username is fixed per provider.
type BotProfile struct {
	Username  string
	FirstName string
	LastName  string
	AvatarURL string
}

// APIToken is a long-lived credential owned by a bot user and scoped to a
// single site scope. Providers use it to call back into the review tool's
// API on behalf of the bot.
type APIToken struct {
	ID            int64
	UserID        int64
	Scope         string
	Token         string
	AutoGenerated bool // True for tokens minted by the orchestration core.
	CreatedAt     time.Time
}
