// AngelaMos | 2026
// service_test.go

package auth_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/auth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/totp"
)

type fixture struct {
	svc   *auth.Service
	jwt   *auth.JWTManager
	totp  *totp.Authenticator
	store *store.MemoryStore
	clk   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := &clock{t: time.Now()}
	m := newJWT(t, clk)
	a := totp.New("test")
	a.SetClock(clk.now)
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		svc:   auth.NewService(st, m, a, auth.NewMemoryRedeemer(), logger),
		jwt:   m,
		totp:  a,
		store: st,
		clk:   clk,
	}
}

func (f *fixture) enableTOTP(t *testing.T, userID string) string {
	t.Helper()
	ctx := context.Background()

	setup, err := f.svc.SetupTOTP(ctx, userID)
	require.NoError(t, err)

	code, err := f.totp.CodeAt(setup.Secret, f.clk.now())
	require.NoError(t, err)
	require.NoError(t, f.svc.EnableTOTP(ctx, userID, setup.Secret, code))

	return setup.Secret
}

func TestRegisterLoginVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	require.NotEmpty(t, reg.Token)
	assert.Equal(t, store.DefaultPlanID, reg.User.PlanID)

	login, err := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.False(t, login.RequiresTOTP)

	claims, err := f.jwt.VerifySession(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, "free", claims.PlanID)
	assert.False(t, claims.IsAdmin)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := auth.RegisterRequest{Email: "dup@example.com", Password: "password-1"}
	_, err := f.svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, req)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestLoginDoesNotRevealAccountExistence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "bob@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "bob@example.com",
		Password: "password-2",
	})
	_, unknownEmail := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "nobody@example.com",
		Password: "password-1",
	})

	assert.ErrorIs(t, wrongPassword, core.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, core.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestTOTPStepUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "carol@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)
	secret := f.enableTOTP(t, reg.User.ID)

	login, err := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "carol@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)
	require.True(t, login.RequiresTOTP)
	assert.Empty(t, login.Token)
	require.NotEmpty(t, login.PendingToken)

	_, err = f.jwt.VerifySession(ctx, login.PendingToken)
	assert.ErrorIs(t, err, core.ErrTokenWrongPurpose)

	_, err = f.svc.VerifyTOTPLogin(ctx, login.PendingToken, "000000")
	assert.ErrorIs(t, err, core.ErrInvalidTOTPCode)

	code, err := f.totp.CodeAt(secret, f.clk.now())
	require.NoError(t, err)

	session, err := f.svc.VerifyTOTPLogin(ctx, login.PendingToken, code)
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	claims, err := f.jwt.VerifySession(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	_, err = f.svc.VerifyTOTPLogin(ctx, login.PendingToken, code)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestPendingTokenExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "dave@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)
	secret := f.enableTOTP(t, reg.User.ID)

	login, err := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "dave@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	f.clk.advance(6 * time.Minute)
	code, err := f.totp.CodeAt(secret, f.clk.now())
	require.NoError(t, err)

	_, err = f.svc.VerifyTOTPLogin(ctx, login.PendingToken, code)
	assert.ErrorIs(t, err, core.ErrTokenExpired)
}

func TestTOTPSetupAndDisable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "erin@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	setup, err := f.svc.SetupTOTP(ctx, reg.User.ID)
	require.NoError(t, err)

	err = f.svc.EnableTOTP(ctx, reg.User.ID, setup.Secret, "123")
	assert.ErrorIs(t, err, core.ErrInvalidTOTPCode)

	user, err := f.store.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.False(t, user.TOTPEnabled)

	secret := f.enableTOTP(t, reg.User.ID)

	_, err = f.svc.SetupTOTP(ctx, reg.User.ID)
	assert.ErrorIs(t, err, core.ErrTOTPAlreadyEnabled)

	code, err := f.totp.CodeAt(secret, f.clk.now())
	require.NoError(t, err)

	err = f.svc.DisableTOTP(ctx, reg.User.ID, "wrong-password", code)
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	require.NoError(t, f.svc.DisableTOTP(ctx, reg.User.ID, "password-1", code))

	user, err = f.store.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.False(t, user.TOTPEnabled)
	assert.Nil(t, user.TOTPSecret)

	err = f.svc.DisableTOTP(ctx, reg.User.ID, "password-1", code)
	assert.ErrorIs(t, err, core.ErrTOTPNotEnabled)
}

func TestChangePasswordAndDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "frank@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, reg.User.ID, "nope", "password-2")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	require.NoError(t, f.svc.ChangePassword(ctx, reg.User.ID, "password-1", "password-2"))

	_, err = f.svc.Login(ctx, auth.LoginRequest{Email: "frank@example.com", Password: "password-2"})
	require.NoError(t, err)

	err = f.svc.DeleteAccount(ctx, reg.User.ID, "password-1")
	assert.ErrorIs(t, err, core.ErrInvalidCredentials)

	require.NoError(t, f.svc.DeleteAccount(ctx, reg.User.ID, "password-2"))

	_, err = f.store.GetUserByID(ctx, reg.User.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMeIncludesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "gina@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "gina@example.com", me.User.Email)
	require.NotNil(t, me.Plan)
	assert.Equal(t, 100, me.Plan.DailyRequestLimit)
	assert.Equal(t, 1, me.Plan.MaxConnections)
}

func TestPendingTokenExhaustedAfterWrongCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, auth.RegisterRequest{
		Email:    "erin@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)
	secret := f.enableTOTP(t, reg.User.ID)

	login, err := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "erin@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	code, err := f.totp.CodeAt(secret, f.clk.now())
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for range auth.MaxTOTPAttempts {
		_, err = f.svc.VerifyTOTPLogin(ctx, login.PendingToken, wrong)
		require.ErrorIs(t, err, core.ErrInvalidTOTPCode)
	}

	_, err = f.svc.VerifyTOTPLogin(ctx, login.PendingToken, code)
	assert.ErrorIs(t, err, core.ErrTokenRevoked, "the correct code is refused once attempts run out")

	fresh, err := f.svc.Login(ctx, auth.LoginRequest{
		Email:    "erin@example.com",
		Password: "password-1",
	})
	require.NoError(t, err)

	session, err := f.svc.VerifyTOTPLogin(ctx, fresh.PendingToken, code)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
}
