// Package auth verifies the signed identity tokens issued by the hosted
// sign-in service and answers the two questions the rest of the app asks:
// is this identity an admin, and does it own a given conversation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no token.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrForbidden is returned when an identity may not access a resource.
	ErrForbidden = errors.New("forbidden")
)

// Claims are the JWT claims of an identity token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin"`
}

// Owns reports whether the identity may access a resource owned by email.
// Admins may access everything.
func (id Identity) Owns(email string) bool {
	return id.Admin || strings.EqualFold(id.Email, email)
}

// Verifier signs and verifies HS256 identity tokens.
type Verifier struct {
	secret []byte
	issuer string
	admins map[string]bool
}

// NewVerifier creates a Verifier. Emails listed in admins are treated as
// admins regardless of the token's admin claim.
func NewVerifier(secret, issuer string, admins []string) *Verifier {
	v := &Verifier{secret: []byte(secret), issuer: issuer, admins: map[string]bool{}}
	for _, email := range admins {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			v.admins[email] = true
		}
	}
	return v
}

// Issue signs a token for id that expires after ttl.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: id.Email,
		Name:  id.Name,
		Admin: id.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   id.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return &Identity{
		Email: strings.ToLower(claims.Email),
		Name:  claims.Name,
		Admin: claims.Admin || v.admins[strings.ToLower(claims.Email)],
	}, nil
}

// FromRequest verifies the bearer token of r. Browsers cannot set headers
// on websocket upgrades, so a "token" query parameter is accepted too.
func (v *Verifier) FromRequest(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return v.Verify(token)
		}
		return nil, ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, fmt.Errorf("%w: invalid authorization header format", ErrInvalidToken)
	}
	return v.Verify(strings.TrimSpace(parts[1]))
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}
