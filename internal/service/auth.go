// Package service contains application services for authentication and orders.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgcrypto "github.com/and161185/orderhub/internal/crypto"
	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/limiter"
	"github.com/and161185/orderhub/internal/metrics"
	"github.com/and161185/orderhub/internal/model"
	"github.com/and161185/orderhub/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Token kinds carried in the typ claim.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

const tokenLeeway = 30 * time.Second

// AuthService defines login gating and token operations.
type AuthService interface {
	// Register creates a new account with secure password hashing.
	Register(ctx context.Context, phone, fullName, password string) (*model.Account, error)
	// Login applies rate limiting, verifies the credential and acquires the
	// account's single session before issuing tokens.
	Login(ctx context.Context, identifier, credential, ip string) (*Grant, error)
	// Logout releases the account's session. Absence is not an error.
	Logout(ctx context.Context, accountID uuid.UUID) (int64, error)
	// Authenticate resolves an access token to its account.
	Authenticate(ctx context.Context, accessToken string) (*model.Account, error)
	// Refresh exchanges a refresh token bound to the live session for new tokens.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
}

// Grant is the result of a successful login.
type Grant struct {
	Tokens  model.Tokens
	Account *model.Account
	Session *model.Session
}

// AuthConfig holds token and session lifetimes.
type AuthConfig struct {
	SignKey    []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SessionTTL time.Duration // 0: no expiry
}

type AuthServiceImpl struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	lim      limiter.Limiter
	cfg      AuthConfig
	log      *zap.Logger
	rec      metrics.Recorder
	now      func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	lim limiter.Limiter,
	cfg AuthConfig,
	log *zap.Logger,
	rec metrics.Recorder,
) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &AuthServiceImpl{
		accounts: accounts,
		sessions: sessions,
		lim:      lim,
		cfg:      cfg,
		log:      log,
		rec:      rec,
		now:      time.Now,
	}
}

// Register creates a new account record with a per-account salt.
func (s *AuthServiceImpl) Register(ctx context.Context, phone, fullName, password string) (*model.Account, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" || password == "" {
		return nil, fmt.Errorf("%w: phone and password are required", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, hash, err := pkgcrypto.NewCredential(password)
	if err != nil {
		return nil, err
	}
	a := &model.Account{
		ID:       id,
		Phone:    phone,
		FullName: strings.TrimSpace(fullName),
		PwdHash:  hash,
		SaltAuth: salt,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Login authenticates with rate limiting by (identifier, ip). The credential is
// checked before the registry is consulted so that callers without a valid
// credential learn nothing about existing sessions.
func (s *AuthServiceImpl) Login(ctx context.Context, identifier, credential, ip string) (*Grant, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is required", errs.ErrInvalidInput)
	}

	allowed, _, err := s.lim.Allow(ctx, identifier, ip)
	if err != nil {
		s.rec.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		s.rec.RecordLogin(metrics.LoginRateLimited)
		return nil, errs.ErrRateLimited
	}

	acc, err := s.accounts.GetByPhone(ctx, identifier)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, s.loginFailed(ctx, identifier, ip, "unknown account")
	case err != nil:
		s.rec.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if !pkgcrypto.VerifyPassword([]byte(credential), acc.SaltAuth, acc.PwdHash) {
		return nil, s.loginFailed(ctx, identifier, ip, "wrong credential")
	}

	sid, err := uuid.NewV4()
	if err != nil {
		s.rec.RecordLogin(metrics.LoginError)
		return nil, err
	}
	var expiresAt *time.Time
	if s.cfg.SessionTTL > 0 {
		t := s.now().Add(s.cfg.SessionTTL)
		expiresAt = &t
	}

	sess, err := s.sessions.TryAcquire(ctx, acc.ID, sid.String(), expiresAt)
	if err != nil {
		if errors.Is(err, errs.ErrSessionActive) {
			s.rec.RecordLogin(metrics.LoginSessionActive)
			s.log.Info("login refused: session active", zap.String("account", acc.ID.String()))
			return nil, err
		}
		s.rec.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("acquire session: %w", err)
	}

	tokens, err := s.issueTokens(acc.ID, sess.Token)
	if err != nil {
		// give the session back so a retry is not locked out
		if _, rerr := s.sessions.Release(context.WithoutCancel(ctx), acc.ID); rerr != nil {
			s.log.Error("release after failed issuance", zap.String("account", acc.ID.String()), zap.Error(rerr))
		}
		s.rec.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	// only a granted login clears the failure window; best-effort
	if err := s.lim.Success(ctx, identifier, ip); err != nil {
		s.log.Warn("limiter reset failed", zap.Error(err))
	}
	s.rec.RecordLogin(metrics.LoginOK)
	return &Grant{Tokens: tokens, Account: acc, Session: sess}, nil
}

func (s *AuthServiceImpl) loginFailed(ctx context.Context, identifier, ip, reason string) error {
	s.log.Info("login failed", zap.String("identifier", identifier), zap.String("reason", reason))
	blocked, _, err := s.lim.Failure(ctx, identifier, ip)
	if err != nil {
		s.log.Warn("limiter failure record", zap.Error(err))
	}
	if err == nil && blocked {
		s.rec.RecordLogin(metrics.LoginRateLimited)
		return errs.ErrRateLimited
	}
	s.rec.RecordLogin(metrics.LoginInvalid)
	return errs.ErrInvalidCredentials
}

// Logout releases the account's session.
func (s *AuthServiceImpl) Logout(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := s.sessions.Release(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("release session: %w", err)
	}
	return n, nil
}

// Authenticate validates an access token and loads its account.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, accessToken string) (*model.Account, error) {
	c, err := s.parse(accessToken, TokenAccess)
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromString(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown account", errs.ErrUnauthorized)
		}
		return nil, err
	}
	return acc, nil
}

// Refresh issues a new token pair if the refresh token's session is still live.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	c, err := s.parse(refreshToken, TokenRefresh)
	if err != nil {
		return model.Tokens{}, err
	}
	id, err := uuid.FromString(c.Subject)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, fmt.Errorf("%w: no live session", errs.ErrUnauthorized)
		}
		return model.Tokens{}, err
	}
	if sess.Token != c.SessionID {
		return model.Tokens{}, fmt.Errorf("%w: session replaced", errs.ErrUnauthorized)
	}
	return s.issueTokens(id, sess.Token)
}

type claims struct {
	jwt.RegisteredClaims
	Type      string `json:"typ"`
	SessionID string `json:"sid,omitempty"`
}

func (s *AuthServiceImpl) issueTokens(accountID uuid.UUID, sessionID string) (model.Tokens, error) {
	now := s.now()
	access, exp, err := s.sign(accountID, sessionID, TokenAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, _, err := s.sign(accountID, sessionID, TokenRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// sign creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) sign(accountID uuid.UUID, sessionID, typ string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if len(s.cfg.SignKey) == 0 {
		return "", time.Time{}, errors.New("empty signing key")
	}
	exp := now.Add(ttl)
	id, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type:      typ,
		SessionID: sessionID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.SignKey)
	return signed, exp, err
}

func (s *AuthServiceImpl) parse(raw, wantType string) (*claims, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.cfg.SignKey, nil
	},
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if c.Type != wantType {
		return nil, fmt.Errorf("%w: want %s token", errs.ErrUnauthorized, wantType)
	}
	return &c, nil
}
