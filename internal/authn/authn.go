// Package authn implements the server's only authentication surface: a
// single shared secret (SharedSecret in internal/config), hashed at rest
// and exchanged for a short-lived session token on success.
//
// The shared secret is hashed with golang.org/x/crypto/bcrypt and never
// stored or compared in plaintext. There is no per-user account table —
// every caller holding a valid token is the same operator — so sessions
// are stateless signed JWTs (golang-jwt/jwt/v5) rather than rows in a
// sessions table checked for expiry on every request.
package authn

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidSecret = errors.New("authn: invalid shared secret")
	ErrMissingToken  = errors.New("authn: missing or malformed authorization")
	ErrInvalidToken  = errors.New("authn: invalid or expired session token")
)

// sessionTTL is how long an issued session token remains valid.
const sessionTTL = 12 * time.Hour

// HashSecret bcrypt-hashes the configured shared secret for storage; main
// calls this once at startup against the configured plaintext secret.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("authn: hash secret: %w", err)
	}
	return string(hash), nil
}

// Authenticator verifies the shared secret and issues/validates session
// tokens.
type Authenticator struct {
	secretHash []byte
	signingKey []byte
}

// New builds an Authenticator. secretHash is the bcrypt hash produced by
// HashSecret; signingKey signs issued session tokens.
func New(secretHash string, signingKey []byte) *Authenticator {
	return &Authenticator{secretHash: []byte(secretHash), signingKey: signingKey}
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSession checks candidateSecret against the stored hash and, on
// success, returns a signed session token valid for sessionTTL.
func (a *Authenticator) IssueSession(candidateSecret string) (string, error) {
	if bcrypt.CompareHashAndPassword(a.secretHash, []byte(candidateSecret)) != nil {
		return "", ErrInvalidSecret
	}

	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", fmt.Errorf("authn: sign session token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a session token, returning ErrInvalidToken
// for anything malformed, unsigned by this server, or expired.
func (a *Authenticator) ValidateToken(tokenString string) error {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

// extractToken pulls the session token from a request, honouring the
// Authorization: Bearer convention, plus a ?token= query parameter for the
// streaming endpoints where a <video>/<audio> tag can't set request
// headers.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return ""
}

// Middleware wraps next, rejecting any request without a valid session
// token with 401.
func (a *Authenticator) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			http.Error(w, ErrMissingToken.Error(), http.StatusUnauthorized)
			return
		}
		if err := a.ValidateToken(token); err != nil {
			http.Error(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
