package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
	"github.com/nkiryanov/gopherauth/internal/repository"
	"github.com/nkiryanov/gopherauth/internal/repository/postgres"
	"github.com/nkiryanov/gopherauth/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/gopherauth/internal/service/session"
	"github.com/nkiryanov/gopherauth/internal/service/user"
	"github.com/nkiryanov/gopherauth/internal/testutil"
)

// Allow to use a function as profile checker
type profileFunc func(ctx context.Context, userID uuid.UUID) (bool, error)

func (f profileFunc) IsProfileComplete(ctx context.Context, userID uuid.UUID) (bool, error) {
	return f(ctx, userID)
}

// Session service whose storage is down
type brokenSessions struct {
	sessionService
	err error
}

func (b brokenSessions) FindLive(ctx context.Context, refreshToken string) (models.Session, error) {
	return models.Session{}, fmt.Errorf("db error: %w", b.err)
}

// Test env: production services over one db transaction sharing movable clock
type env struct {
	s       *AuthService
	storage repository.Storage
	setNow  func(time.Time)
}

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	withTx := func(t *testing.T, cfg Config, profiles profileChecker, fn func(e env)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			now := start
			clock := func() time.Time { return now }

			storage := postgres.NewStorage(tx)
			tokens, err := tokenmanager.New(tokenmanager.Config{
				SecretKey:  "test-secret-key",
				AccessTTL:  15 * time.Minute,
				RefreshTTL: 24 * time.Hour,
				Now:        clock,
			})
			require.NoError(t, err, "token manager should be created without errors")

			s, err := NewService(
				cfg,
				tokens,
				user.NewService(user.BcryptHasher{Cost: bcrypt.MinCost}, storage),
				session.NewService(storage, clock),
				profiles,
				logger.NewNoOpLogger(),
			)
			require.NoError(t, err, "auth service could't be started")

			fn(env{s: s, storage: storage, setNow: func(to time.Time) { now = to }})
		})
	}

	signupAndLogin := func(t *testing.T, s *AuthService) models.LoginResult {
		_, err := s.Signup(t.Context(), "gopher@example.com", "pwd", "Gopher")
		require.NoError(t, err)
		res, err := s.Login(t.Context(), "gopher@example.com", "pwd")
		require.NoError(t, err)
		return res
	}

	t.Run("new auth service defaults", func(t *testing.T) {
		tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "secret"})
		require.NoError(t, err)

		s, err := NewService(Config{}, tokens, &user.UserService{}, &session.SessionService{}, nil, nil)
		require.NoError(t, err, "auth service should be created without errors")

		require.Equal(t, defaultAccessHeaderName, s.accessHeaderName, "default access header name should be set")
		require.Equal(t, defaultAccessAuthScheme, s.accessAuthScheme, "default access auth")
		require.Equal(t, defaultRefreshCookieName, s.refreshCookieName, "default refresh cookie name should be set")
		require.Equal(t, defaultRefreshCookiePath, s.refreshCookiePath)
		require.False(t, s.rotateRefresh, "refresh is not rotated by default")
	})

	t.Run("new auth service without dependencies fail", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil, nil, nil, nil)

		require.Error(t, err)
	})

	t.Run("Signup", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				view, err := e.s.Signup(t.Context(), "Gopher@Example.com", "pwd", "Gopher")

				require.NoError(t, err, "registering new user should be ok")
				assert.Equal(t, "gopher@example.com", view.Email)
				assert.Equal(t, "Gopher", view.Name)
				assert.Equal(t, models.RoleUser, view.Role)
				assert.False(t, view.ProfileComplete)
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				_, err := e.s.Signup(t.Context(), "gopher@example.com", "pwd", "Gopher")
				require.NoError(t, err, "no error has should happen if user not exists")

				_, err = e.s.Signup(t.Context(), "GOPHER@EXAMPLE.COM", "other-pwd", "Other")

				require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				created, err := e.s.Signup(t.Context(), "gopher@example.com", "pwd", "Gopher")
				require.NoError(t, err)

				res, err := e.s.Login(t.Context(), "gopher@example.com", "pwd")

				require.NoError(t, err)
				assert.NotEmpty(t, res.Access.Value, "access token should not be empty")
				assert.NotEmpty(t, res.Refresh.Value, "refresh token should not be empty")
				assert.Equal(t, created, res.User)
				assert.Equal(t, start.Add(24*time.Hour), res.Refresh.ExpiresAt)

				opened, err := e.storage.Session().GetForUpdate(t.Context(), session.HashToken(res.Refresh.Value))
				require.NoError(t, err, "session must be opened")
				assert.Equal(t, created.ID, opened.UserID)
				assert.True(t, res.Refresh.ExpiresAt.Equal(opened.ExpiresAt), "session expires with refresh token")
			})
		})

		tests := []struct {
			name     string
			email    string
			password string
		}{
			{"login fail if wrong password", "gopher@example.com", "wrong"},
			{"login fail if user not exists", "nobody@example.com", "pwd"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				withTx(t, Config{}, nil, func(e env) {
					_, err := e.s.Signup(t.Context(), "gopher@example.com", "pwd", "Gopher")
					require.NoError(t, err)

					_, err = e.s.Login(t.Context(), tt.email, tt.password)

					require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
				})
			})
		}

		t.Run("second login keeps first session", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				first := signupAndLogin(t, e.s)

				_, err := e.s.Login(t.Context(), "gopher@example.com", "pwd")
				require.NoError(t, err)

				_, err = e.s.Refresh(t.Context(), first.Refresh.Value)
				require.NoError(t, err, "first session must stay usable")
			})
		})

		t.Run("profile complete", func(t *testing.T) {
			complete := profileFunc(func(context.Context, uuid.UUID) (bool, error) { return true, nil })
			withTx(t, Config{}, complete, func(e env) {
				res := signupAndLogin(t, e.s)

				assert.True(t, res.User.ProfileComplete)
			})
		})

		t.Run("profile check failure does not fail login", func(t *testing.T) {
			broken := profileFunc(func(context.Context, uuid.UUID) (bool, error) { return true, errors.New("profiles down") })
			withTx(t, Config{}, broken, func(e env) {
				res := signupAndLogin(t, e.s)

				assert.False(t, res.User.ProfileComplete)
				assert.NotEmpty(t, res.Access.Value)
			})
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("refresh ok", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				login := signupAndLogin(t, e.s)
				e.setNow(start.Add(time.Hour))

				res, err := e.s.Refresh(t.Context(), login.Refresh.Value)

				require.NoError(t, err)
				assert.NotEqual(t, login.Access.Value, res.Access.Value, "new access token should be different")
				assert.Equal(t, start.Add(time.Hour+15*time.Minute), res.Access.ExpiresAt)
				assert.False(t, res.Rotated(), "refresh token is not rotated by default")

				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.NoError(t, err, "not rotated refresh token is reusable")
			})
		})

		t.Run("refresh with rotation", func(t *testing.T) {
			withTx(t, Config{RotateRefresh: true}, nil, func(e env) {
				login := signupAndLogin(t, e.s)

				res, err := e.s.Refresh(t.Context(), login.Refresh.Value)

				require.NoError(t, err)
				require.True(t, res.Rotated())
				assert.NotEqual(t, login.Refresh.Value, res.Refresh.Value)

				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken, "used refresh token must be rejected")

				_, err = e.s.Refresh(t.Context(), res.Refresh.Value)
				require.NoError(t, err, "rotated refresh token works")
			})
		})

		t.Run("access token rejected", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				login := signupAndLogin(t, e.s)

				_, err := e.s.Refresh(t.Context(), login.Access.Value)

				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			})
		})

		t.Run("garbage rejected", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				_, err := e.s.Refresh(t.Context(), "not-a-token")

				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			})
		})

		t.Run("expired purged", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				login := signupAndLogin(t, e.s)

				e.setNow(login.Refresh.ExpiresAt)
				_, err := e.s.Refresh(t.Context(), login.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)

				_, err = e.storage.Session().GetForUpdate(t.Context(), session.HashToken(login.Refresh.Value))
				require.ErrorIs(t, err, apperrors.ErrSessionNotFound, "expired session must be purged on failed refresh")

				e.setNow(start)
				_, err = e.s.Refresh(t.Context(), login.Refresh.Value)
				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken, "session never comes back")
			})
		})

		t.Run("valid right before expiry", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				login := signupAndLogin(t, e.s)

				e.setNow(login.Refresh.ExpiresAt.Add(-time.Second))
				_, err := e.s.Refresh(t.Context(), login.Refresh.Value)

				require.NoError(t, err)
			})
		})

		t.Run("after logout", func(t *testing.T) {
			withTx(t, Config{}, nil, func(e env) {
				login := signupAndLogin(t, e.s)
				require.NoError(t, e.s.Logout(t.Context(), login.Refresh.Value))

				_, err := e.s.Refresh(t.Context(), login.Refresh.Value)

				require.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			})
		})
	})

	t.Run("Logout", func(t *testing.T) {
		withTx(t, Config{}, nil, func(e env) {
			login := signupAndLogin(t, e.s)

			require.NoError(t, e.s.Logout(t.Context(), login.Refresh.Value))
			require.NoError(t, e.s.Logout(t.Context(), login.Refresh.Value), "logout is idempotent")
			require.NoError(t, e.s.Logout(t.Context(), "unknown"), "unknown token is ok")
			require.NoError(t, e.s.Logout(t.Context(), ""), "empty token is ok")
		})
	})

	t.Run("LogoutAll", func(t *testing.T) {
		withTx(t, Config{}, nil, func(e env) {
			first := signupAndLogin(t, e.s)
			second, err := e.s.Login(t.Context(), "gopher@example.com", "pwd")
			require.NoError(t, err)

			count, err := e.s.LogoutAll(t.Context(), first.User.ID)

			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
			for _, refresh := range []string{first.Refresh.Value, second.Refresh.Value} {
				_, err := e.s.Refresh(t.Context(), refresh)
				assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
			}

			_, err = e.s.Login(t.Context(), "gopher@example.com", "pwd")
			require.NoError(t, err, "user may log in again")
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		withTx(t, Config{}, nil, func(e env) {
			login := signupAndLogin(t, e.s)

			request := func(header string) *http.Request {
				r := httptest.NewRequest(http.MethodGet, "/", nil)
				if header != "" {
					r.Header.Set("Authorization", header)
				}
				return r
			}

			identity, err := e.s.Authenticate(request("Bearer " + login.Access.Value))
			require.NoError(t, err)
			assert.Equal(t, models.Identity{UserID: login.User.ID, Email: "gopher@example.com", Role: models.RoleUser}, identity)

			for _, header := range []string{"", "Bearer", "Bearer ", "Basic " + login.Access.Value, "Bearer " + login.Refresh.Value, login.Access.Value} {
				_, err := e.s.Authenticate(request(header))
				assert.ErrorIs(t, err, apperrors.ErrTokenInvalid, "header %q", header)
			}

			e.setNow(login.Access.ExpiresAt)
			_, err = e.s.Authenticate(request("Bearer " + login.Access.Value))
			assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
		})
	})
}

func Test_RefreshStorageFailure(t *testing.T) {
	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"})
	require.NoError(t, err)

	storageErr := errors.New("connection refused")
	s, err := NewService(Config{}, tokens, &user.UserService{}, brokenSessions{err: storageErr}, nil, logger.NewNoOpLogger())
	require.NoError(t, err)

	refresh, err := tokens.IssueRefresh(models.User{ID: uuid.New(), Email: "gopher@example.com", Role: models.RoleUser})
	require.NoError(t, err)

	_, err = s.Refresh(t.Context(), refresh.Value)

	require.ErrorIs(t, err, storageErr, "storage error should be returned as is")
	require.NotErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken, "valid token must not be reported as revoked because of storage failure")
}
