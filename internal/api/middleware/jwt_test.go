package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func authedHandler(t *testing.T, wantOperator string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := OperatorFromContext(r.Context()); got != wantOperator {
			t.Errorf("operator from context = %q, want %q", got, wantOperator)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	token, expiresAt, err := GenerateOperatorToken(testSecret, "operator")
	if err != nil {
		t.Fatalf("GenerateOperatorToken: %v", err)
	}
	if until := time.Until(expiresAt); until < 23*time.Hour || until > 25*time.Hour {
		t.Errorf("token lifetime = %v, want about 24h", until)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	RequireOperatorAuth(testSecret)(authedHandler(t, "operator")).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestOperatorAuthRejections(t *testing.T) {
	valid, _, err := GenerateOperatorToken(testSecret, "operator")
	if err != nil {
		t.Fatalf("GenerateOperatorToken: %v", err)
	}
	otherSecret, _, err := GenerateOperatorToken([]byte("another-secret-another-secret-xx"), "operator")
	if err != nil {
		t.Fatalf("GenerateOperatorToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic " + valid},
		{"malformed token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + otherSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler reached with invalid auth")
			})
			RequireOperatorAuth(testSecret)(next).ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestOperatorAuthRejectsEmptyUsername(t *testing.T) {
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with empty username claim")
	})
	RequireOperatorAuth(testSecret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
