package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey string

const contextVerdictKey contextKey = "verdict"

// Verdict is the per-request authentication result.
type Verdict struct {
	Authenticated bool
	UserID        string
}

// WithVerdict returns a copy of ctx carrying v.
func WithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, contextVerdictKey, v)
}

// VerdictFromContext returns the verdict attached to ctx, or an
// unauthenticated verdict when none is present.
func VerdictFromContext(ctx context.Context) Verdict {
	v, _ := ctx.Value(contextVerdictKey).(Verdict)
	return v
}

// Authenticate attaches a Verdict to every request. It never rejects a
// request; handlers decide whether authentication is required.
func Authenticate(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithVerdict(r.Context(), verify(tokens, r))))
		})
	}
}

func verify(tokens *TokenManager, r *http.Request) Verdict {
	tokenString, err := bearerToken(r)
	if err != nil {
		return Verdict{}
	}
	claims, err := tokens.Verify(tokenString)
	if err != nil {
		return Verdict{}
	}
	return Verdict{Authenticated: true, UserID: claims.UserID}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
