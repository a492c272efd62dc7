package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// apiTokenPrefix marks tokens minted by buildhub for provider callbacks.
const apiTokenPrefix = "bhp_"

// IdentityService lazily creates and looks up the per-provider bot users
// that own status updates, along with the scoped API tokens providers use
// to call back into the review tool.
type IdentityService struct {
	store        driven.IdentityStore
	noReplyEmail string
	logger       *slog.Logger
}

// NewIdentityService creates an IdentityService. noReplyEmail is assigned
// to newly created bot users.
func NewIdentityService(store driven.IdentityStore, noReplyEmail string, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		store:        store,
		noReplyEmail: noReplyEmail,
		logger:       logger,
	}
}

// EnsureUser returns the bot user for the profile, creating it on first
// use. Creation is race safe: a unique-constraint conflict means another
// creator won, and the winner's row is re-read instead of erroring. Avatar
// configuration failures are logged and are not fatal to creation.
func (s *IdentityService) EnsureUser(ctx context.Context, profile model.BotProfile) (*model.BotUser, error) {
	user, err := s.store.GetUserByUsername(ctx, profile.Username)
	if err != nil {
		return nil, fmt.Errorf("look up bot user %q: %w", profile.Username, err)
	}
	if user != nil {
		return user, nil
	}

	s.logger.Info("creating bot user", "username", profile.Username)

	user = &model.BotUser{
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Email:     s.noReplyEmail,
		SendEmail: true,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, driven.ErrUserExists) {
			// Another process beat us to it.
			winner, err := s.store.GetUserByUsername(ctx, profile.Username)
			if err != nil {
				return nil, fmt.Errorf("re-read bot user %q: %w", profile.Username, err)
			}
			if winner == nil {
				return nil, fmt.Errorf("bot user %q exists but could not be read", profile.Username)
			}
			return winner, nil
		}
		return nil, fmt.Errorf("create bot user %q: %w", profile.Username, err)
	}

	user.SendEmail = false
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("disable email for bot user %q: %w", profile.Username, err)
	}

	if profile.AvatarURL != "" {
		user.AvatarURL = profile.AvatarURL
		if err := s.store.UpdateUser(ctx, user); err != nil {
			user.AvatarURL = ""
			s.logger.Warn("failed to set bot user avatar",
				"username", profile.Username,
				"error", err,
			)
		}
	}

	return user, nil
}

// EnsureAPIToken returns the user's API token for the given scope,
// generating a system-marked token on first use.
func (s *IdentityService) EnsureAPIToken(ctx context.Context, user *model.BotUser, scope string) (*model.APIToken, error) {
	token, err := s.store.GetAPIToken(ctx, user.ID, scope)
	if err != nil {
		return nil, fmt.Errorf("look up API token for user %d: %w", user.ID, err)
	}
	if token != nil {
		return token, nil
	}

	value, err := generateTokenValue()
	if err != nil {
		return nil, err
	}

	token = &model.APIToken{
		UserID:        user.ID,
		Scope:         scope,
		Token:         value,
		AutoGenerated: true,
	}
	if err := s.store.CreateAPIToken(ctx, token); err != nil {
		return nil, fmt.Errorf("create API token for user %d: %w", user.ID, err)
	}

	return token, nil
}

func generateTokenValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate API token: %w", err)
	}
	return apiTokenPrefix + hex.EncodeToString(buf), nil
}
