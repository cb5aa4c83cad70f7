package access

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every token validation failure. Callers get no
// detail about why a credential was rejected.
var ErrInvalidToken = errors.New("invalid token")

// TokenProvider verifies bearer tokens and extracts the identity carried
// in their claims.
type TokenProvider struct {
	secret []byte
}

// NewTokenProvider returns a provider verifying HS256 tokens signed with
// secret.
func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret)}
}

type identityClaims struct {
	UserID         int64    `json:"user_id"`
	OrganizationID int64    `json:"organization_id,omitempty"`
	TeamID         int64    `json:"team_id,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Parse verifies tokenStr and returns the identity it carries.
func (p *TokenProvider) Parse(tokenStr string) (*Identity, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:         claims.UserID,
		OrganizationID: claims.OrganizationID,
		TeamID:         claims.TeamID,
		Roles:          claims.Roles,
	}, nil
}

// Issue creates a signed token carrying the identity, valid for ttl.
func (p *TokenProvider) Issue(id *Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		UserID:         id.UserID,
		OrganizationID: id.OrganizationID,
		TeamID:         id.TeamID,
		Roles:          id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "strata",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
