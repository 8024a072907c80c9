package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/orderhub/internal/errs"
	"github.com/and161185/orderhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testKey = []byte("test-signing-key")

type authFixture struct {
	svc      *AuthServiceImpl
	accounts *fakeAccounts
	sessions *fakeSessions
	lim      *fakeLimiter
	acc      *model.Account
}

func newAuthFixture(t *testing.T, cfg AuthConfig) *authFixture {
	t.Helper()
	if cfg.SignKey == nil {
		cfg.SignKey = testKey
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = time.Hour
	}
	f := &authFixture{
		accounts: newFakeAccounts(),
		sessions: newFakeSessions(),
		lim:      &fakeLimiter{},
	}
	f.svc = NewAuthService(f.accounts, f.sessions, f.lim, cfg, zaptest.NewLogger(t), nil)
	acc, err := f.svc.Register(context.Background(), "+1000", "Ann Lee", "secret")
	require.NoError(t, err)
	f.acc = acc
	return f
}

func TestAuth_Register(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})

	require.Equal(t, "+1000", f.acc.Phone)
	require.Equal(t, "Ann Lee", f.acc.FullName)
	require.NotEqual(t, uuid.Nil, f.acc.ID)
	require.NotEmpty(t, f.acc.PwdHash)

	_, err := f.svc.Register(context.Background(), " ", "x", "pw")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = f.svc.Register(context.Background(), "+2000", "x", "")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = f.svc.Register(context.Background(), "+1000", "Dup", "pw")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestAuth_Login_IssuesTokensAndSession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	g, err := f.svc.Login(ctx, "+1000", "secret", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, g.Tokens.AccessToken)
	require.NotEmpty(t, g.Tokens.RefreshToken)
	require.Equal(t, f.acc.ID, g.Account.ID)
	require.Equal(t, f.acc.ID, g.Session.AccountID)
	require.Nil(t, g.Session.ExpiresAt)
	require.Equal(t, 1, f.lim.successCalls)

	acc, err := f.svc.Authenticate(ctx, g.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "+1000", acc.Phone)
}

func TestAuth_Login_SecondLoginRefusedUntilLogout(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "+1000", "secret", "b")
	require.ErrorIs(t, err, errs.ErrSessionActive)
	require.Equal(t, 1, f.sessions.count(f.acc.ID))
	// a refused login keeps the lockout window intact
	require.Equal(t, 1, f.lim.successCalls)

	n, err := f.svc.Logout(ctx, f.acc.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = f.svc.Login(ctx, "+1000", "secret", "b")
	require.NoError(t, err)
}

func TestAuth_Login_SessionExpiry(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{SessionTTL: time.Hour})
	now := time.Now()
	f.svc.now = func() time.Time { return now }
	f.sessions.now = func() time.Time { return now }
	ctx := context.Background()

	g, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)
	require.NotNil(t, g.Session.ExpiresAt)
	require.True(t, g.Session.ExpiresAt.Equal(now.Add(time.Hour)))

	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.ErrorIs(t, err, errs.ErrSessionActive)

	later := now.Add(2 * time.Hour)
	f.svc.now = func() time.Time { return later }
	f.sessions.now = func() time.Time { return later }
	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)
}

func TestAuth_Login_ConcurrentAttemptsYieldOneSession(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	const k = 5

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		conflict int
	)
	start := make(chan struct{})
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Login(context.Background(), "+1000", "secret", "x")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrSessionActive):
				conflict++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, k-1, conflict)
	require.Equal(t, 1, f.sessions.count(f.acc.ID))
}

func TestAuth_Login_WrongCredentialDoesNotTouchRegistry(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)
	calls := f.sessions.acquireCalls

	// a live session must not be revealed to a caller with a bad credential
	_, err = f.svc.Login(ctx, "+1000", "nope", "a")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	require.Equal(t, calls, f.sessions.acquireCalls)
	require.Equal(t, 1, f.lim.failureCalls)
}

func TestAuth_Login_UnknownAccountLooksLikeBadCredential(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})

	_, err := f.svc.Login(context.Background(), "+9999", "secret", "a")
	require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	require.Equal(t, 1, f.lim.failureCalls)
	require.Zero(t, f.sessions.acquireCalls)
}

func TestAuth_Login_RateLimited(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	f.lim.failBlocked = true
	_, err := f.svc.Login(ctx, "+1000", "bad", "a")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	f.lim.denied = true
	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	require.Zero(t, f.sessions.acquireCalls)
}

func TestAuth_Login_EmptyIdentifier(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	_, err := f.svc.Login(context.Background(), "  ", "secret", "a")
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	require.Zero(t, f.lim.allowCalls)
}

func TestAuth_Login_InfrastructureErrors(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()
	boom := errors.New("db down")

	f.sessions.acquireErr = boom
	_, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrSessionActive)

	f.sessions.acquireErr = nil
	f.lim.allowErr = boom
	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.ErrorIs(t, err, boom)

	f.lim.allowErr = nil
	f.accounts.getErr = boom
	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestAuth_Login_ReleasesSessionWhenIssuanceFails(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	f.svc.cfg.SignKey = nil

	_, err := f.svc.Login(context.Background(), "+1000", "secret", "a")
	require.Error(t, err)
	require.Equal(t, 1, f.sessions.releaseCalls)
	require.Zero(t, f.sessions.count(f.acc.ID))
	require.Zero(t, f.lim.successCalls)

	f.svc.cfg.SignKey = testKey
	_, err = f.svc.Login(context.Background(), "+1000", "secret", "a")
	require.NoError(t, err)
}

func TestAuth_Logout_Idempotent(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	n, err := f.svc.Logout(context.Background(), f.acc.ID)
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = f.svc.Logout(context.Background(), uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAuth_Authenticate_Rejections(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{AccessTTL: time.Minute})
	ctx := context.Background()
	issued := time.Now()
	f.svc.now = func() time.Time { return issued }

	g, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":       "not-a-jwt",
		"empty":         "",
		"refresh token": g.Tokens.RefreshToken,
	}
	for name, tok := range cases {
		_, err := f.svc.Authenticate(ctx, tok)
		require.ErrorIs(t, err, errs.ErrUnauthorized, name)
	}

	// foreign key
	other := NewAuthService(f.accounts, f.sessions, nil, AuthConfig{SignKey: []byte("other"), AccessTTL: time.Minute, RefreshTTL: time.Minute}, zaptest.NewLogger(t), nil)
	tok, _, err := other.sign(f.acc.ID, "sid", TokenAccess, time.Now(), time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// unexpected algorithm
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   f.acc.ID.String(),
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Minute)),
		},
		Type: TokenAccess,
	}).SignedString(testKey)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, hs512)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// unknown account
	ghost, _, err := f.svc.sign(uuid.Must(uuid.NewV4()), "sid", TokenAccess, issued, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, ghost)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// within leeway, then past it
	f.svc.now = func() time.Time { return issued.Add(time.Minute + 10*time.Second) }
	_, err = f.svc.Authenticate(ctx, g.Tokens.AccessToken)
	require.NoError(t, err)
	f.svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = f.svc.Authenticate(ctx, g.Tokens.AccessToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuth_Refresh(t *testing.T) {
	t.Parallel()
	f := newAuthFixture(t, AuthConfig{})
	ctx := context.Background()

	g, err := f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)

	tokens, err := f.svc.Refresh(ctx, g.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, g.Tokens.AccessToken, tokens.AccessToken)
	_, err = f.svc.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, g.Tokens.AccessToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = f.svc.Logout(ctx, f.acc.ID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, g.Tokens.RefreshToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// a new login invalidates refresh tokens of the previous session
	_, err = f.svc.Login(ctx, "+1000", "secret", "a")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, g.Tokens.RefreshToken)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
