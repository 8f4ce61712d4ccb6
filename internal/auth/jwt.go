package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
	"github.com/voyager-crm/voyager/internal/shared"
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed tokens.
var ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", httpx.ErrUnauthorized)

const issuer = "voyager"

// Claims carried by access tokens.
type Claims struct {
	AgencyID string `json:"agency_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue creates a signed token for the principal.
func (t *TokenIssuer) Issue(p shared.Principal) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		AgencyID: p.AgencyID.String(),
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates the token and returns the principal it identifies.
func (t *TokenIssuer) Parse(raw string) (shared.Principal, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return shared.Principal{}, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return shared.Principal{}, ErrInvalidToken
	}
	var agencyID uuid.UUID
	if claims.AgencyID != "" {
		agencyID, err = uuid.Parse(claims.AgencyID)
		if err != nil {
			return shared.Principal{}, ErrInvalidToken
		}
	}
	if claims.Role == "" {
		return shared.Principal{}, fmt.Errorf("%w: role claim missing", ErrInvalidToken)
	}
	return shared.Principal{UserID: userID, AgencyID: agencyID, Role: claims.Role}, nil
}
