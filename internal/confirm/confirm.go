// Package confirm issues and checks signed confirmation tokens. They let an
// anonymous caller prove a claim made earlier, e.g. confirming an event
// signup created with a bare email address. Confirmation tokens are a
// separate concern from login sessions: they are self-contained, short-lived
// and single-purpose.
package confirm

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid covers every verification failure: bad signature, expired,
// malformed, wrong purpose. Callers get no further detail.
var ErrInvalid = errors.New("confirm: invalid token")

// DefaultTTL is the validity window of newly issued tokens.
const DefaultTTL = 48 * time.Hour

// Claims binds a token to one item and one purpose.
type Claims struct {
	Resource string `json:"res"`
	ItemID   string `json:"item"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 confirmation tokens with a single static
// secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. The secret must be non-empty; rotating it
// invalidates all outstanding tokens, which is acceptable for this use.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("confirm: empty signing secret")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source, for tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	if now != nil {
		s.now = now
	}
	return s
}

// Sign issues a token for the given item and purpose.
func (s *Signer) Sign(resource, itemID, purpose string) (string, error) {
	if resource == "" || itemID == "" || purpose == "" {
		return "", errors.New("confirm: resource, item and purpose are all required")
	}
	now := s.now().UTC()
	claims := Claims{
		Resource: resource,
		ItemID:   itemID,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("confirm: sign: %w", err)
	}
	return token, nil
}

// Verify checks the token and returns its claims if it is valid for the
// expected purpose.
func (s *Signer) Verify(token, purpose string) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Purpose != purpose || claims.Resource == "" || claims.ItemID == "" {
		return nil, ErrInvalid
	}
	return &claims, nil
}
