package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relabs-tech/motionsense/internal/auth"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(t *testing.T, clk *clock) *auth.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	svc, err := auth.NewService(db, "test-secret",
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithTTL(15*time.Minute),
		auth.WithClock(clk.Now),
	)
	require.NoError(t, err)
	return svc
}

var alice = auth.RegisterRequest{
	Username: " Alice ",
	Password: "correct-horse",
	Name:     "Alice",
	Age:      31,
	Height:   1.68,
	Weight:   60,
}

func TestRegisterAndLogin(t *testing.T) {
	clk := &clock{now: time.Now()}
	svc := newService(t, clk)
	ctx := context.Background()

	user, err := svc.Register(ctx, alice)
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "alice", user.Username)
	require.NotEqual(t, alice.Password, user.PasswordHash)

	_, err = svc.Register(ctx, alice)
	require.ErrorIs(t, err, auth.ErrUserExists)

	_, err = svc.Login(ctx, auth.LoginRequest{Username: "alice", Password: "wrong-password"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Login(ctx, auth.LoginRequest{Username: "bob", Password: "correct-horse"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	sess, err := svc.Login(ctx, auth.LoginRequest{Username: "ALICE", Password: "correct-horse"})
	require.NoError(t, err)
	require.Equal(t, "Bearer", sess.TokenType)
	require.Equal(t, clk.now.Add(15*time.Minute).Unix(), sess.ExpiresAt.Unix())

	me, err := svc.CurrentUser(ctx, sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, me.ID)
	require.Equal(t, 31, me.Age)
}

func TestRegisterRejects(t *testing.T) {
	svc := newService(t, &clock{now: time.Now()})

	req := alice
	req.Password = "short"
	_, err := svc.Register(context.Background(), req)
	require.ErrorIs(t, err, auth.ErrWeakPassword)

	req = alice
	req.Username = "  "
	_, err = svc.Register(context.Background(), req)
	require.ErrorIs(t, err, auth.ErrInvalidUsername)
}

func TestLogoutRevokes(t *testing.T) {
	svc := newService(t, &clock{now: time.Now()})
	ctx := context.Background()
	_, err := svc.Register(ctx, alice)
	require.NoError(t, err)

	first, err := svc.Login(ctx, auth.LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	second, err := svc.Login(ctx, auth.LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(first.AccessToken))
	_, err = svc.CurrentUser(ctx, first.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = svc.CurrentUser(ctx, second.AccessToken)
	require.NoError(t, err, "other sessions stay valid")

	require.ErrorIs(t, svc.Logout("garbage"), auth.ErrUnauthenticated)
}

func TestTokenExpires(t *testing.T) {
	clk := &clock{now: time.Now()}
	svc := newService(t, clk)
	ctx := context.Background()
	_, err := svc.Register(ctx, alice)
	require.NoError(t, err)
	sess, err := svc.Login(ctx, auth.LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	clk.now = clk.now.Add(16 * time.Minute)
	_, err = svc.CurrentUser(ctx, sess.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newService(t, &clock{now: time.Now()})
	ctx := context.Background()
	_, err := svc.Register(ctx, alice)
	require.NoError(t, err)
	sess, err := svc.Login(ctx, auth.LoginRequest{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", svc.RequireAuth(), func(c *gin.Context) {
		u, ok := auth.UserFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, u.Username)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + sess.AccessToken, status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: "bearer " + sess.AccessToken, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.Equal(t, "alice", w.Body.String())
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	require.Equal(t, "abc", auth.BearerToken("  BEARER   abc "))
	require.Empty(t, auth.BearerToken("abc"))
	require.Empty(t, auth.BearerToken(""))
}
