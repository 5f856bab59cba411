package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const operatorKey contextKey = "operator"

// operatorTokenTTL is the lifetime of an operator JWT (24 hours).
const operatorTokenTTL = 24 * time.Hour

// OperatorClaims holds the JWT claims for operator API authentication.
type OperatorClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken creates a signed JWT for an operator login.
func GenerateOperatorToken(secret []byte, username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(operatorTokenTTL)

	claims := OperatorClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "xdial",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireOperatorAuth returns middleware that validates JWT bearer tokens on
// operator endpoints. On success it stores the operator username in the
// request context.
func RequireOperatorAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("operator auth: invalid jwt", "error", err)
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.Username == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves the authenticated operator username from the
// request context. Returns "" if not set.
func OperatorFromContext(ctx context.Context) string {
	username, _ := ctx.Value(operatorKey).(string)
	return username
}
