package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ctxKey string

const (
	sessionCookieName = "session"
	accountIDCtxKey   = ctxKey("accountID")
)

// AccountVerifier is an optional callback to validate that a session's account
// still exists. Set during app bootstrap via SetAccountVerifier; nil skips the
// extra check.
type AccountVerifier func(ctx context.Context, id snowflake.ID) bool

var verifier AccountVerifier

// SetAccountVerifier configures the global verifier used by RequireAuth.
func SetAccountVerifier(v AccountVerifier) { verifier = v }

var secret string

// SetSecret overrides the session signing secret (from config).
func SetSecret(s string) { secret = s }

// Secret returns the configured secret, SESSION_SECRET, or a dev default.
func Secret() string {
	if secret != "" {
		return secret
	}
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return s
	}
	return "devsessionsecret"
}

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(Secret()))
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CreateSession sets a signed cookie with the account id.
func CreateSession(w http.ResponseWriter, accountID snowflake.ID) {
	idStr := strconv.FormatInt(int64(accountID), 10)
	value := idStr + "." + sign(idStr)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(14 * 24 * time.Hour),
	})
}

// ClearSession deletes the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// ParseSession validates the cookie and returns the account id.
func ParseSession(r *http.Request) (snowflake.ID, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	parts := strings.Split(c.Value, ".")
	if len(parts) != 2 {
		return 0, false
	}
	idStr, sig := parts[0], parts[1]
	if !hmac.Equal([]byte(sig), []byte(sign(idStr))) {
		return 0, false
	}
	id64, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, false
	}
	return snowflake.ID(id64), true
}

// WithAccountID stores the account id in context.
func WithAccountID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, accountIDCtxKey, id)
}

// AccountIDFromContext extracts the account id.
func AccountIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	v := ctx.Value(accountIDCtxKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok
}

// Middleware attaches the account id to the request context if present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := ParseSession(r); ok {
			r = r.WithContext(WithAccountID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects unauthenticated requests with 401 JSON.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := AccountIDFromContext(r.Context())
		if !ok {
			unauthorized(w)
			return
		}
		if verifier != nil && !verifier(r.Context(), id) {
			// Session refers to a deleted account: clear and reject.
			ClearSession(w)
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
