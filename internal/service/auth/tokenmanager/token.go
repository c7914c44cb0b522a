package tokenmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID        `json:"uid"`
	Role   models.Role      `json:"role"`
	Kind   models.TokenKind `json:"kind"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

// TokenManager issues and verifies signed tokens
// It keeps no mutable state, so safe for concurrent use
type TokenManager struct {
	key []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	// Only symmetric MAC algorithms are accepted, the key is a shared secret
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field <= 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		key:        []byte(cfg.SecretKey),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	return m.issue(user, models.TokenKindAccess, m.accessTTL)
}

func (m *TokenManager) IssueRefresh(user models.User) (models.IssuedToken, error) {
	return m.issue(user, models.TokenKindRefresh, m.refreshTTL)
}

func (m *TokenManager) issue(user models.User, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	// NumericDate has seconds precision, truncate to keep ExpiresAt equal to the claim
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		m.alg,
		tokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   user.Email,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: user.ID,
			Role:   user.Role,
			Kind:   kind,
		},
	)

	value, err := token.SignedString(m.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Verify token signature, expiry and kind
// Returns apperrors.ErrTokenExpired if token expired and apperrors.ErrTokenInvalid on any other problem
func (m *TokenManager) Verify(value string, kind models.TokenKind) (models.Claims, error) {
	claims := &tokenClaims{}

	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.Claims{}, fmt.Errorf("token error: %w", apperrors.ErrTokenExpired)
	case err != nil:
		return models.Claims{}, fmt.Errorf("token error: %w: %w", apperrors.ErrTokenInvalid, err)
	case claims.Kind != kind:
		return models.Claims{}, fmt.Errorf("token error: unexpected kind %q: %w", claims.Kind, apperrors.ErrTokenInvalid)
	case claims.UserID == uuid.Nil || !claims.Role.Valid() || claims.IssuedAt == nil:
		return models.Claims{}, fmt.Errorf("token error: incomplete claims: %w", apperrors.ErrTokenInvalid)
	}

	return models.Claims{
		ID:        claims.ID,
		Subject:   claims.Subject,
		UserID:    claims.UserID,
		Role:      claims.Role,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
