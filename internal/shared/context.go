package shared

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/httprate"
)

// ActorHeader carries the id of the user acting on a request. Identity is
// resolved upstream; the API only records it.
const ActorHeader = "X-Actor-ID"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext returns the acting user id, 0 when unknown.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// ActorFromRequest prefers the id stored by ActorMiddleware and falls back to
// the raw header. Malformed or negative ids yield 0.
func ActorFromRequest(r *http.Request) int64 {
	if id := ActorFromContext(r.Context()); id > 0 {
		return id
	}
	return parseActor(r.Header.Get(ActorHeader))
}

// ActorMiddleware resolves the actor header once per request.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := parseActor(r.Header.Get(ActorHeader)); id > 0 {
			r = r.WithContext(ContextWithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitKey keys httprate limiters by actor, or by client IP for
// anonymous callers.
func RateLimitKey(r *http.Request) (string, error) {
	if id := ActorFromRequest(r); id > 0 {
		return "actor:" + strconv.FormatInt(id, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func parseActor(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
