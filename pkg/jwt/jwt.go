package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrBadSignature   = errors.New("token signature is invalid")
	ErrWrongTokenKind = errors.New("wrong token kind")
	ErrInvalidClaim   = errors.New("invalid token claims")
)

// TokenKind distinguishes short-lived access tokens from refresh tokens
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims is the signed claim set shared by every principal role
type Claims struct {
	PrincipalID string    `json:"pid"`
	Role        string    `json:"role"`
	Kind        TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customises a TokenManager
type Option func(*TokenManager)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		tm.now = now
	}
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, issuer string, accessTTL, refreshTTL time.Duration, opts ...Option) *TokenManager {
	tm := &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// IssuePair creates an access and a refresh token for the principal
func (tm *TokenManager) IssuePair(principalID, role string) (*TokenPair, error) {
	now := tm.now()

	access, accessExp, err := tm.sign(principalID, role, KindAccess, now, tm.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tm.sign(principalID, role, KindRefresh, now, tm.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (tm *TokenManager) sign(principalID, role string, kind TokenKind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)

	claims := Claims{
		PrincipalID: principalID,
		Role:        role,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tm.issuer,
			Subject:   principalID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, expiresAt, nil
}

// Verify validates a token of the expected kind and returns its claims
func (tm *TokenManager) Verify(tokenString string, expected TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithIssuer(tm.issuer),
		jwt.WithTimeFunc(tm.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidClaim, err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PrincipalID == "" || claims.Role == "" {
		return nil, ErrInvalidClaim
	}
	if claims.Kind != expected {
		return nil, ErrWrongTokenKind
	}

	return claims, nil
}

// Refresh verifies a refresh token and issues a new pair. The old refresh
// token is not revoked here; callers that rotate must revoke its ID.
func (tm *TokenManager) Refresh(refreshToken string) (*TokenPair, *Claims, error) {
	claims, err := tm.Verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, nil, err
	}

	pair, err := tm.IssuePair(claims.PrincipalID, claims.Role)
	if err != nil {
		return nil, nil, err
	}
	return pair, claims, nil
}
