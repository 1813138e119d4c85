// Package authz adapts a host ACL system into boundary-level guards for the
// content API. It is a factory, not an implementation: the host supplies a
// permission predicate and a user resolver, and gets back middleware that
// resolves the actor, checks the relevant permission and translates
// authentication and authorization failures into 401 and 403.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Permission strings checked by the guards.
const (
	PermissionAuthor    = "cms.author"
	PermissionPublisher = "cms.publisher"
)

// Actor is the resolved caller.
type Actor struct {
	UID   string
	Roles []string
}

// ResolveUserFunc extracts the actor from a request. It returns an
// AuthenticationError (or nil actor) when the request carries no valid
// identity.
type ResolveUserFunc func(r *http.Request) (*Actor, error)

// HasPermissionFunc decides whether any of the roles grants a permission.
type HasPermissionFunc func(permission string, roles []string) bool

// AuthenticationError means the caller could not be identified.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// AuthorizationError means an identified caller lacks a permission.
type AuthorizationError struct {
	Permission string
}

func (e *AuthorizationError) Error() string {
	return "missing permission " + e.Permission
}

type contextKey struct{}

// WithActor stores the actor on a context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext returns the actor a guard stored, or nil.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(contextKey{}).(*Actor)
	return actor
}

// Gate produces permission-checking middleware bound to the host's ACL
// system.
type Gate struct {
	resolve       ResolveUserFunc
	hasPermission HasPermissionFunc
}

// NewGate builds a Gate from the host-supplied predicate and resolver.
func NewGate(resolve ResolveUserFunc, hasPermission HasPermissionFunc) (*Gate, error) {
	if resolve == nil || hasPermission == nil {
		return nil, errors.New("authz: resolver and permission predicate are required")
	}
	return &Gate{resolve: resolve, hasPermission: hasPermission}, nil
}

// RequireAuthor guards author-level operations (create, update, lock,
// history).
func (g *Gate) RequireAuthor() func(http.Handler) http.Handler {
	return g.require(PermissionAuthor)
}

// RequirePublisher guards publisher-level operations (publish, trash,
// restore, delete).
func (g *Gate) RequirePublisher() func(http.Handler) http.Handler {
	return g.require(PermissionPublisher)
}

func (g *Gate) require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := g.resolve(r)
			if err != nil {
				var authErr *AuthenticationError
				if errors.As(err, &authErr) {
					writeDenied(w, http.StatusUnauthorized, authErr.Error())
					return
				}
				var permErr *AuthorizationError
				if errors.As(err, &permErr) {
					writeDenied(w, http.StatusForbidden, permErr.Error())
					return
				}
				writeDenied(w, http.StatusInternalServerError, "authorization failed")
				return
			}
			if actor == nil || actor.UID == "" {
				writeDenied(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !g.hasPermission(permission, actor.Roles) {
				writeDenied(w, http.StatusForbidden, (&AuthorizationError{Permission: permission}).Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
