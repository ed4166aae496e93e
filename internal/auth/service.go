// Package auth handles account sign-up, login and token verification. Tokens
// are HS256 JWTs whose jti is registered in the session store so that logout
// takes effect before expiry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/tripmate/companion/internal/apperr"
	"github.com/tripmate/companion/internal/ban"
	"github.com/tripmate/companion/internal/user"
)

// UserStore is the subset of account storage auth needs.
type UserStore interface {
	Create(ctx context.Context, u *user.User) error
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// SessionRegistry tracks live token IDs.
type SessionRegistry interface {
	Register(ctx context.Context, jti, userID string, ttl time.Duration) error
	Active(ctx context.Context, jti, userID string) (bool, error)
	Revoke(ctx context.Context, jti, userID string) error
}

// SuspensionChecker reports whether an account is suspended and how many
// times it has been.
type SuspensionChecker interface {
	Check(ctx context.Context, userID string) (ban.Status, error)
	OffenseCount(ctx context.Context, userID string) (int, error)
}

// SignupRequest is the payload for creating an account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Result is returned by Signup and Login.
type Result struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      user.Public `json:"user"`
}

// Service implements the authentication flows.
type Service struct {
	users       UserStore
	issuer      *Issuer
	sessions    SessionRegistry
	suspensions SuspensionChecker
}

// NewService wires the auth flows to their collaborators.
func NewService(users UserStore, issuer *Issuer, sessions SessionRegistry, suspensions SuspensionChecker) *Service {
	return &Service{
		users:       users,
		issuer:      issuer,
		sessions:    sessions,
		suspensions: suspensions,
	}
}

// Signup creates an account and logs it in.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Result, error) {
	email := user.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, apperr.Invalid("Missing required fields")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Invalid("Invalid email address")
	}
	if len(req.Password) < MinPasswordLength {
		return nil, apperr.Invalid(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{Email: email, PasswordHash: hash, Name: name}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	log.Printf("[auth] signup user=%s", u.ID)

	return s.login(ctx, u)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("auth: login: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("auth: login: %w", apperr.ErrUnauthorized)
	}
	if err := s.checkSuspension(ctx, u.ID); err != nil {
		return nil, err
	}
	return s.login(ctx, u)
}

// Logout revokes the token identified by claims.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if err := s.sessions.Revoke(ctx, claims.ID, claims.UserID); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}
	return nil
}

// Authenticate verifies a raw token, its registry entry and the account's
// suspension state. Redis failures fail open: a correctly signed, unexpired
// token is accepted when the registry cannot be reached.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return nil, err
	}

	active, err := s.sessions.Active(ctx, claims.ID, claims.UserID)
	switch {
	case err != nil:
		log.Printf("[auth] session lookup failed jti=%s: %v (failing open)", claims.ID, err)
	case !active:
		return nil, fmt.Errorf("auth: session revoked: %w", apperr.ErrUnauthorized)
	}

	if err := s.checkSuspension(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Service) login(ctx context.Context, u *user.User) (*Result, error) {
	token, claims, err := s.issuer.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Register(ctx, claims.ID, u.ID, s.issuer.TTL()); err != nil {
		return nil, fmt.Errorf("auth: register session: %w", err)
	}
	return &Result{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      u.Public(),
	}, nil
}

func (s *Service) checkSuspension(ctx context.Context, userID string) error {
	st, err := s.suspensions.Check(ctx, userID)
	if err != nil {
		log.Printf("[auth] suspension check failed user=%s: %v (failing open)", userID, err)
		return nil
	}
	if !st.Suspended {
		return nil
	}
	msg := fmt.Sprintf("Account suspended for about %d more hour(s)", int(st.Remaining.Hours())+1)
	offense, err := s.suspensions.OffenseCount(ctx, userID)
	if err != nil {
		log.Printf("[auth] offense count user=%s: %v", userID, err)
	}
	if offense > 0 {
		msg += fmt.Sprintf(" (offense %d)", offense)
	}
	return apperr.Forbidden(msg)
}
