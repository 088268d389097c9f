package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/localnerve/authorizer-go"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/internal/utils"
)

// SessionValidator turns an authorizer session cookie into the acting user.
type SessionValidator interface {
	ValidateSession(ctx context.Context, cookie string) (*types.Actor, error)
}

// AuthorizerSessions validates session cookies against an Authorizer instance.
type AuthorizerSessions struct {
	client *authorizer.AuthorizerClient
	log    *zap.Logger
}

// NewAuthorizerSessions pings the authorizer and builds a client for it.
func NewAuthorizerSessions(ctx context.Context, cfg *config.Config, redirectURL string, log *zap.Logger) (*AuthorizerSessions, error) {
	if err := utils.PingAuthorizer(ctx, cfg.AuthzURL); err != nil {
		return nil, fmt.Errorf("authorizer ping failed: %w", err)
	}

	log.Info("initializing authorizer",
		zap.String("authorizerURL", cfg.AuthzURL),
		zap.String("clientID", cfg.AuthzClientID),
		zap.String("redirectURL", redirectURL))

	client, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, redirectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return &AuthorizerSessions{client: client, log: log}, nil
}

// sessionUser is the subset of the authorizer user the service relies on.
type sessionUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// ValidateSession validates a session cookie and returns its user.
func (a *AuthorizerSessions) ValidateSession(_ context.Context, cookie string) (*types.Actor, error) {
	res, err := a.client.ValidateSession(&authorizer.ValidateSessionInput{Cookie: cookie})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	if res == nil || !res.IsValid || res.User == nil {
		return nil, errors.New("session is not valid")
	}

	raw, err := json.Marshal(res.User)
	if err != nil {
		return nil, fmt.Errorf("session user: %w", err)
	}
	var user sessionUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("session user: %w", err)
	}
	if user.ID == "" {
		return nil, errors.New("session user has no id")
	}
	return &types.Actor{ID: user.ID, Email: user.Email, Roles: user.Roles}, nil
}

// ActorClaims are the bearer token claims. The subject is the user id.
type ActorClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 bearer tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier returns nil when secret is empty.
func NewJWTVerifier(secret string) *JWTVerifier {
	if secret == "" {
		return nil
	}
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses token and returns its actor.
func (v *JWTVerifier) Verify(token string) (*types.Actor, error) {
	var claims ActorClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid bearer token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid bearer token: missing subject")
	}
	return &types.Actor{ID: claims.Subject, Email: claims.Email, Roles: claims.Roles}, nil
}

// Issue signs a token for actor valid for ttl.
func (v *JWTVerifier) Issue(actor *types.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Email: actor.Email,
		Roles: actor.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
