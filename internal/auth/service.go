package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/document-management/internal"
	"github.com/frahmantamala/document-management/internal/core/common/validation"
	userDatamodel "github.com/frahmantamala/document-management/internal/core/datamodel/user"
	"github.com/frahmantamala/document-management/internal/core/repository"
	"github.com/frahmantamala/document-management/internal/mail"
	"github.com/frahmantamala/document-management/internal/token"
)

// ResetSalt separates reset tokens from any other token signed with the
// same secret.
const ResetSalt = "reset-password"

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	FindByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	ChangePassword(ctx context.Context, id int64, password string) (*userDatamodel.User, error)
}

type PasswordVerifier interface {
	Verify(hash, password string) (bool, error)
}

type TaskDelayer interface {
	Delay(ctx context.Context, name string, args interface{}) (string, error)
}

type Config struct {
	// ResetURL is the absolute URL reset tokens are appended to.
	ResetURL string
}

type Service struct {
	users     UserStore
	passwords PasswordVerifier
	tokens    *JWTTokenGenerator
	blocklist Blocklist
	reset     *token.Serializer
	tasks     TaskDelayer
	cfg       Config
	logger    *slog.Logger
}

func NewService(users UserStore, passwords PasswordVerifier, tokens *JWTTokenGenerator, blocklist Blocklist,
	reset *token.Serializer, tasks TaskDelayer, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		blocklist: blocklist,
		reset:     reset,
		tasks:     tasks,
		cfg:       cfg,
		logger:    logger,
	}
}

// Login checks the credentials of a live, active user. Every failure is
// reported as invalid credentials.
func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthTokens, error) {
	if err := validation.Struct(req); err != nil {
		return AuthTokens{}, err
	}
	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return AuthTokens{}, internal.ErrInternal.WithCause(err)
		}
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	ok, err := s.passwords.Verify(u.Password, req.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "password verification failed", "user_id", u.ID, "error", err)
	}
	if !ok || !u.Active {
		return AuthTokens{}, internal.ErrInvalidCredentials
	}
	return s.issue(u, true)
}

func (s *Service) issue(u *userDatamodel.User, withRefresh bool) (AuthTokens, error) {
	access, err := s.tokens.GenerateAccessToken(u)
	if err != nil {
		return AuthTokens{}, internal.ErrInternal.WithCause(err)
	}
	out := AuthTokens{AccessToken: access}
	if withRefresh {
		if out.RefreshToken, err = s.tokens.GenerateRefreshToken(u); err != nil {
			return AuthTokens{}, internal.ErrInternal.WithCause(err)
		}
	}
	return out, nil
}

// Refresh trades a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (AuthTokens, error) {
	if err := validation.Struct(req); err != nil {
		return AuthTokens{}, err
	}
	claims, err := s.tokens.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return AuthTokens{}, bearerError(err)
	}
	u, err := s.current(ctx, claims)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(u, false)
}

// Authenticate resolves a bearer access token into the request principal.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*internal.Principal, error) {
	if bearer == "" {
		return nil, internal.ErrUnauthorized
	}
	claims, err := s.tokens.ValidateAccessToken(bearer)
	if err != nil {
		return nil, bearerError(err)
	}
	revoked, err := s.blocklist.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, internal.ErrInternal.WithCause(err)
	}
	if revoked {
		return nil, internal.ErrInvalidToken
	}
	u, err := s.current(ctx, claims)
	if err != nil {
		return nil, err
	}
	return &internal.Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Roles:     u.RoleNames(),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// current loads the token owner and checks the token predates no credential
// change.
func (s *Service) current(ctx context.Context, claims *Claims) (*userDatamodel.User, error) {
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, internal.ErrInternal.WithCause(err)
	}
	if !u.Active || u.FsUniquifier != claims.FsUniquifier {
		return nil, internal.ErrInvalidToken
	}
	return u, nil
}

// Logout revokes the access token of the calling principal. Logging out
// twice is not an error.
func (s *Service) Logout(ctx context.Context) error {
	p, ok := internal.PrincipalFromContext(ctx)
	if !ok {
		return internal.ErrUnauthorized
	}
	if err := s.blocklist.Revoke(ctx, p.TokenID, time.Until(p.ExpiresAt)); err != nil {
		return internal.ErrInternal.WithCause(err)
	}
	s.logger.InfoContext(ctx, "user logged out", "user_id", p.UserID)
	return nil
}

// RequestReset mails a reset link when email belongs to a live user and
// answers the same way when it does not.
func (s *Service) RequestReset(ctx context.Context, req ResetRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return internal.ErrInternal.WithCause(err)
	}

	signed, err := s.reset.Generate(resetSubject(u))
	if err != nil {
		return internal.ErrInternal.WithCause(err)
	}
	id, err := s.tasks.Delay(ctx, mail.TaskResetPassword, mail.ResetPasswordArgs{
		Email:   u.Email,
		Name:    u.Name,
		URL:     strings.TrimRight(s.cfg.ResetURL, "/") + "/" + signed,
		Expires: s.reset.MaxAge(),
	})
	if err != nil {
		return internal.ErrInternal.WithCause(err)
	}
	s.logger.InfoContext(ctx, "password reset mail enqueued", "user_id", u.ID, "task_id", id)
	return nil
}

// CheckReset validates a reset token without consuming it.
func (s *Service) CheckReset(ctx context.Context, signed string) error {
	_, err := s.resetOwner(ctx, signed)
	return err
}

// ConfirmReset stores the new password and logs the user in. Rotating the
// uniquifier makes the token unusable afterwards.
func (s *Service) ConfirmReset(ctx context.Context, signed string, req ConfirmResetRequest) (AuthTokens, error) {
	if err := validation.Struct(req); err != nil {
		return AuthTokens{}, err
	}
	u, err := s.resetOwner(ctx, signed)
	if err != nil {
		return AuthTokens{}, err
	}
	updated, err := s.users.ChangePassword(ctx, u.ID, req.Password)
	if err != nil {
		return AuthTokens{}, err
	}
	s.logger.InfoContext(ctx, "password reset", "user_id", u.ID)
	return s.issue(updated, true)
}

func (s *Service) resetOwner(ctx context.Context, signed string) (*userDatamodel.User, error) {
	subject, err := s.reset.Verify(signed)
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		return nil, internal.ErrResetTokenExpired
	case err != nil:
		return nil, internal.ErrInvalidToken
	}
	email, fs, ok := strings.Cut(subject, "|")
	if !ok {
		return nil, internal.ErrInvalidToken
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, internal.ErrInternal.WithCause(err)
	}
	if u.FsUniquifier != fs {
		return nil, internal.ErrInvalidToken
	}
	return u, nil
}

func resetSubject(u *userDatamodel.User) string {
	return u.Email + "|" + u.FsUniquifier
}

func bearerError(err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return internal.ErrTokenExpired
	}
	return internal.ErrInvalidToken
}
