package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

// ErrUserExists is returned by CreateUser when another creator won the race
// for the same username. Callers should discard the failed attempt and
// re-read the winner's row.
var ErrUserExists = errors.New("bot user already exists")

// IdentityStore defines the driven port for bot user and API token
// persistence. User creation is guarded by a database-level uniqueness
// constraint rather than an application-level lock.
type IdentityStore interface {
	// GetUserByUsername returns the bot user with the given username, or
	// nil if it does not exist.
	GetUserByUsername(ctx context.Context, username string) (*model.BotUser, error)
	// CreateUser inserts a new bot user and sets its ID. Returns
	// ErrUserExists if the username is already taken.
	CreateUser(ctx context.Context, user *model.BotUser) error
	// UpdateUser writes the mutable profile fields (send_email,
	// avatar_url) of an existing user.
	UpdateUser(ctx context.Context, user *model.BotUser) error

	// GetAPIToken returns the token owned by the user for the given
	// scope, or nil if none exists.
	GetAPIToken(ctx context.Context, userID int64, scope string) (*model.APIToken, error)
	// CreateAPIToken inserts a new API token and sets its ID.
	CreateAPIToken(ctx context.Context, token *model.APIToken) error
}
