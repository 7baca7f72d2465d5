package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/warp/placement-engine/placement"
)

// StaffClaims is the token payload identifying a staff member.
type StaffClaims struct {
	StaffID string `json:"staff_id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and puts the Actor in the
// request context.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueToken signs a token for actor valid for ttl.
func (a *Authenticator) IssueToken(actor placement.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		StaffID: string(actor.ID),
		Name:    actor.Name,
		Role:    string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates the signature and claims and returns the actor.
func (a *Authenticator) ParseToken(tokenString string) (placement.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return placement.Actor{}, err
	}
	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return placement.Actor{}, errors.New("invalid token")
	}
	if claims.StaffID == "" {
		return placement.Actor{}, errors.New("token has no staff_id")
	}
	role, err := placement.ParseRole(claims.Role)
	if err != nil {
		return placement.Actor{}, err
	}
	return placement.Actor{ID: placement.StaffID(claims.StaffID), Name: claims.Name, Role: role}, nil
}

// Middleware rejects requests without a valid bearer token with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		actor, err := a.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

type actorKey struct{}

func WithActor(ctx context.Context, actor placement.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor. ok is false outside the
// authenticated routes.
func ActorFrom(ctx context.Context) (placement.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(placement.Actor)
	return actor, ok
}
