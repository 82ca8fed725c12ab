// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ActorIDKey is the context key for the authenticated agent id.
	ActorIDKey ContextKey = "actor_id"
	// DepartmentIDKey is the context key for the agent's department.
	DepartmentIDKey ContextKey = "department_id"
)

// Claims represents JWT claims. The subject is the agent id.
type Claims struct {
	jwt.RegisteredClaims
	DepartmentID *int `json:"department_id,omitempty"`
}

// Auth creates JWT authentication middleware.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			actorID, err := strconv.Atoi(claims.Subject)
			if err != nil || actorID <= 0 {
				unauthorized(w, "invalid token subject")
				return
			}

			ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
			if claims.DepartmentID != nil {
				ctx = context.WithValue(ctx, DepartmentIDKey, *claims.DepartmentID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// WithActor returns a context carrying the actor identity.
func WithActor(ctx context.Context, actorID int, departmentID *int) context.Context {
	ctx = context.WithValue(ctx, ActorIDKey, actorID)
	if departmentID != nil {
		ctx = context.WithValue(ctx, DepartmentIDKey, *departmentID)
	}
	return ctx
}

// GetActorID gets the agent id from context, or 0.
func GetActorID(ctx context.Context) int {
	if v, ok := ctx.Value(ActorIDKey).(int); ok {
		return v
	}
	return 0
}

// GetDepartmentID gets the agent's department from context.
func GetDepartmentID(ctx context.Context) *int {
	if v, ok := ctx.Value(DepartmentIDKey).(int); ok {
		return &v
	}
	return nil
}
