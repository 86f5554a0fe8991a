package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/pixelboard/internal/auth"
	"github.com/sakif/pixelboard/internal/model"
	"github.com/sakif/pixelboard/internal/repository"
)

// AuthService turns a completed Discord login into a session.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (user_details)
//	                   ↘ TokenService (JWT)
//
// It does not set cookies or read requests; that is the handler's job.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// AuthResult bundles the identity and its signed token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	Identity *model.Identity
	Token    string
}

// LoginDiscord upserts the profile into user_details and issues a token.
//
// The upsert keeps the name and avatar shown next to painted cells current:
// grid hydration joins pixels with user_details, so a renamed user shows up
// under the new name after the next reload.
func (s *AuthService) LoginDiscord(ctx context.Context, user *auth.DiscordUser) (*AuthResult, error) {
	if user == nil {
		return nil, fmt.Errorf("service/auth: Discord user must not be nil")
	}
	id := user.Identity()

	details := &model.UserDetails{
		UserID:    id.SubjectID,
		Username:  id.DisplayName,
		AvatarURL: id.AvatarURL,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.users.UpsertDetails(ctx, details); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", id.SubjectID, err)
	}

	s.logger.Info("user authenticated via Discord",
		slog.String("user_id", id.SubjectID),
		slog.String("name", id.DisplayName),
	)

	token, err := s.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", id.SubjectID, err)
	}
	return &AuthResult{Identity: id, Token: token}, nil
}

// Details returns the stored profile for userID.
func (s *AuthService) Details(ctx context.Context, userID string) (*model.UserDetails, error) {
	if userID == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	d, err := s.users.GetDetails(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return d, nil
}

// ValidateToken returns the identity a token carries.
func (s *AuthService) ValidateToken(tokenStr string) (*model.Identity, error) {
	id, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	return id, nil
}
