package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/ragchat-go/internal/apperr"
	"github.com/54b3r/ragchat-go/internal/logging"
)

// Authenticator verifies a bearer token and returns the caller's identity.
// A rejected token must produce an error for which apperr.IsUnauthorized
// reports true.
type Authenticator interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StaticKey accepts exactly one pre-shared token.
type StaticKey struct {
	key    string
	userID string
}

// NewStaticKey returns an Authenticator that accepts key and reports userID
// for every accepted request. An empty userID defaults to "default".
func NewStaticKey(key, userID string) *StaticKey {
	if userID == "" {
		userID = "default"
	}
	return &StaticKey{key: key, userID: userID}
}

// Verify compares token against the configured key in constant time.
func (a *StaticKey) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.New(apperr.KindUnauthorized, "Unauthorized: missing bearer token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.key)) != 1 {
		return "", apperr.New(apperr.KindUnauthorized, "Unauthorized: invalid token")
	}
	return a.userID, nil
}

type userKey struct{}

// UserFromContext returns the identity stored by the auth middleware, or ""
// when authentication is disabled.
func UserFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// publicPaths are reachable without a token so orchestrators can probe the
// process.
var publicPaths = map[string]bool{
	"/api/health": true,
	"/api/ready":  true,
}

// authMiddleware enforces bearer-token authentication on /api/* routes.
// A nil authenticator disables it; a warning is logged once at server
// construction rather than per request.
//
// Protected routes must supply:
//
//	Authorization: Bearer <token>
//
// Rejected requests receive 401 with the JSON error shape and a
// WWW-Authenticate challenge. The token value is never logged.
func authMiddleware(auth Authenticator, next http.Handler) http.Handler {
	if auth == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		token := bearerToken(r)

		userID, err := auth.Verify(r.Context(), token)
		if err != nil {
			log.Warn("auth: request rejected",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", token != ""),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="ragchat"`)
			writeError(w, log, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, userID)
		ctx = logging.WithLogger(ctx, log.With(slog.String("user_id", userID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
