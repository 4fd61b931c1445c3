// Package auth signs and verifies the gateway's HS256 bearer tokens and maps
// their roles onto route permissions.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "crisiscrew"
	secretEnvVariable = "CRISISCREW_AUTH_SECRET"

	// clockSkew is tolerated on exp, nbf and iat.
	clockSkew = 5 * time.Second
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// issuer, expiry, missing subject. Callers answer 401.
var ErrInvalidToken = errors.New("invalid token")

var errMissingSecret = errors.New("auth secret is not configured")

// Claims carries the caller's roles next to the registered claims. The
// subject is the user id recorded on approvals.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

var (
	secretMu sync.Mutex
	secret   []byte
	// secretSet is true once secret came from Configure or the environment.
	secretSet bool
)

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(issuer),
	jwt.WithExpirationRequired(),
	jwt.WithIssuedAt(),
	jwt.WithLeeway(clockSkew),
)

// GenerateToken signs a token for userID valid for ttl.
func GenerateToken(userID string, roles []string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("userID is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be greater than zero")
	}
	key, err := signingKey()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Roles: dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies token and returns its claims with roles
// normalized. A missing secret is reported as itself, not as ErrInvalidToken.
func ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	key, err := signingKey()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

// dedupeRoles lower-cases, trims and de-duplicates, keeping first-seen order.
func dedupeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// Configure installs the signing secret, taking precedence over
// $CRISISCREW_AUTH_SECRET. A blank value is ignored.
func Configure(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	secretMu.Lock()
	defer secretMu.Unlock()
	secret, secretSet = []byte(value), true
}

// Configured reports whether a signing secret is available.
func Configured() bool {
	_, err := signingKey()
	return err == nil
}

// signingKey returns the configured secret, reading the environment on
// first use. An empty environment is re-read on the next call.
func signingKey() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secretSet {
		return secret, nil
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		return nil, errMissingSecret
	}
	secret, secretSet = []byte(raw), true
	return secret, nil
}

// ResetSecretForTests forgets the cached secret.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret, secretSet = nil, false
}
