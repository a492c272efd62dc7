package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IdentityStore = (*IdentityRepo)(nil)

// IdentityRepo is the SQLite implementation of the IdentityStore port
// interface. Bot user creation relies on the username uniqueness
// constraint; a constraint violation surfaces as driven.ErrUserExists so
// the caller can re-read the winner's row.
type IdentityRepo struct {
	db *DB
}

// NewIdentityRepo creates a new IdentityRepo backed by the given DB.
func NewIdentityRepo(db *DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// GetUserByUsername returns the bot user with the given username, or nil
// if it does not exist.
func (r *IdentityRepo) GetUserByUsername(ctx context.Context, username string) (*model.BotUser, error) {
	const query = `
		SELECT id, username, first_name, last_name, email, send_email, avatar_url, created_at
		FROM bot_users
		WHERE username = ?
	`

	var user model.BotUser
	var sendEmail int
	var createdAt string

	err := r.db.Reader.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.FirstName, &user.LastName,
		&user.Email, &sendEmail, &user.AvatarURL, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot user %q: %w", username, err)
	}

	user.SendEmail = sendEmail != 0

	user.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &user, nil
}

// CreateUser inserts a new bot user and sets its ID. Returns
// driven.ErrUserExists when the username uniqueness constraint fires.
func (r *IdentityRepo) CreateUser(ctx context.Context, user *model.BotUser) error {
	const query = `
		INSERT INTO bot_users (username, first_name, last_name, email, send_email, avatar_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		user.Username, user.FirstName, user.LastName,
		user.Email, boolToInt(user.SendEmail), user.AvatarURL,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return driven.ErrUserExists
		}
		return fmt.Errorf("insert bot user %q: %w", user.Username, err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("bot user insert id: %w", err)
	}

	return nil
}

// UpdateUser writes the mutable profile fields of an existing user.
func (r *IdentityRepo) UpdateUser(ctx context.Context, user *model.BotUser) error {
	const query = `
		UPDATE bot_users
		SET send_email = ?, avatar_url = ?
		WHERE id = ?
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		boolToInt(user.SendEmail), user.AvatarURL, user.ID,
	)
	if err != nil {
		return fmt.Errorf("update bot user %d: %w", user.ID, err)
	}

	return nil
}

// GetAPIToken returns the token owned by the user for the given scope, or
// nil if none exists.
func (r *IdentityRepo) GetAPIToken(ctx context.Context, userID int64, scope string) (*model.APIToken, error) {
	const query = `
		SELECT id, user_id, scope, token, auto_generated, created_at
		FROM api_tokens
		WHERE user_id = ? AND scope = ?
	`

	var token model.APIToken
	var autoGenerated int
	var createdAt string

	err := r.db.Reader.QueryRowContext(ctx, query, userID, scope).Scan(
		&token.ID, &token.UserID, &token.Scope, &token.Token, &autoGenerated, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get API token for user %d: %w", userID, err)
	}

	token.AutoGenerated = autoGenerated != 0

	token.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &token, nil
}

// CreateAPIToken inserts a new API token and sets its ID.
func (r *IdentityRepo) CreateAPIToken(ctx context.Context, token *model.APIToken) error {
	const query = `
		INSERT INTO api_tokens (user_id, scope, token, auto_generated)
		VALUES (?, ?, ?, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		token.UserID, token.Scope, token.Token, boolToInt(token.AutoGenerated),
	)
	if err != nil {
		return fmt.Errorf("insert API token for user %d: %w", token.UserID, err)
	}

	token.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("API token insert id: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure. modernc.org/sqlite wraps SQLITE_CONSTRAINT_UNIQUE in a plain
// error, so the message is the stable surface to match on.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
