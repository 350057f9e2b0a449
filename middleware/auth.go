package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

const issuer = "pixelart-server"

var ErrInvalidToken = errors.New("invalid session token")

// SessionClaims bind a bearer token to exactly one editing session.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionTokens issues and verifies HS256 session tokens.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionTokens uses secret when set; otherwise a random per-process
// secret is generated, which invalidates tokens on restart.
func NewSessionTokens(secret string, ttl time.Duration) (*SessionTokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		logrus.Warn("JWT_SECRET is not set. Using a random secret; session tokens will not survive a restart.")
	}
	return &SessionTokens{secret: key, ttl: ttl}, nil
}

func (t *SessionTokens) Issue(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  sessionID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if t.ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks the token signature and that it was issued for sessionID.
func (t *SessionTokens) Verify(tokenString, sessionID string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject != sessionID {
		return nil, fmt.Errorf("%w: issued for another session", ErrInvalidToken)
	}
	return claims, nil
}

// RequireSession rejects requests whose bearer token was not issued for
// the session named by the {sessionId} URL parameter.
func (t *SessionTokens) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		sessionID := chi.URLParam(r, "sessionId")
		claims, err := t.Verify(parts[1], sessionID)
		if err != nil {
			logrus.WithField("session_id", sessionID).WithError(err).Debug("Rejected session token")
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "Invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
