package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/teamspace-service/internal/domain"
)

// Verification failure kinds. Callers decide the HTTP or connection-level
// response; the codec never maps these to statuses itself.
var (
	// ErrTokenExpired means the signature checked out but the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers bad structure, wrong algorithm, or a signature mismatch.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrMissingClaim means a structurally valid token lacks a required identity claim.
	ErrMissingClaim = errors.New("token missing required claim")
)

// TokenCodec signs and verifies compact self-contained tokens carrying
// identity claims. It is constructed once at process start and passed by
// reference; there is no package-level instance.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec builds a codec from the shared signing secret.
func NewTokenCodec(secret string, ttlMinutes int) *TokenCodec {
	return &TokenCodec{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// identityClaims is the typed claim set embedded in every issued token.
// Decoding into int64 keeps userId exact for the full 63-bit range; there
// is no float64 hop for integer literals.
type identityClaims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// Issue signs a token embedding the subject name and user id, valid for
// the configured TTL from now.
func (tc *TokenCodec) Issue(subjectName string, userID int64) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tc.ttl)
	claims := &identityClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature integrity first, then expiry, then required
// claims, and returns the embedded Identity. Claims are never inspected
// before the signature is validated.
func (tc *TokenCodec) Verify(tokenStr string) (domain.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &identityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return tc.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrTokenExpired
		}
		return domain.Identity{}, ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*identityClaims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, ErrTokenMalformed
	}
	if claims.UserID == 0 || claims.Subject == "" {
		return domain.Identity{}, ErrMissingClaim
	}

	identity := domain.Identity{
		SubjectName: claims.Subject,
		UserID:      claims.UserID,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// TTL exposes the configured token lifetime.
func (tc *TokenCodec) TTL() time.Duration {
	return tc.ttl
}
