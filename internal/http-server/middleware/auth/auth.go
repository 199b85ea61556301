// Package auth verifies bearer tokens issued by the identity provider and
// enforces per-route roles.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

type ctxKey struct{}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(models.Actor)
	return actor, ok
}

// New returns middleware that rejects requests without a valid HS256
// token. The token's sub and role become the request's Actor.
func New(log *slog.Logger, secret []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.With(slog.String("component", "middleware/auth"))

		fn := func(w http.ResponseWriter, r *http.Request) {
			actor, reason := parseActor(r.Header.Get("Authorization"), secret)
			if reason != "" {
				log.Info("Request rejected",
					slog.String("reason", reason),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), reason))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		}

		return http.HandlerFunc(fn)
	}
}

func parseActor(header string, secret []byte) (models.Actor, string) {
	if header == "" {
		return models.Actor{}, "missing Authorization header"
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return models.Actor{}, "invalid Authorization header"
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return models.Actor{}, "empty token"
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Actor{}, "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Actor{}, "invalid claims"
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return models.Actor{}, "invalid sub"
	}

	role, _ := claims["role"].(string)

	return models.Actor{ID: sub, Role: models.Role(role)}, ""
}

// RequireRole allows the request only for the given roles. It must run
// after New.
func RequireRole(roles ...models.Role) func(next http.Handler) http.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "authentication required"))
				return
			}

			if _, ok := allowed[actor.Role]; !ok {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error(string(response.FORBIDDEN), "role not allowed for this resource"))
				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

// IssueToken signs a token for actor. The identity provider owns real
// issuance; this is used by cmd/seed and tests.
func IssueToken(secret []byte, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actor.ID,
		"role": string(actor.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})

	return token.SignedString(secret)
}
