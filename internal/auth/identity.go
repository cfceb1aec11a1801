package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Role int

const (
	RoleAnonymous Role = iota
	RolePresenter
)

// Identity is fixed when a connection is established and never changes.
type Identity struct {
	role      Role
	sessionId string
}

func Anonymous() Identity {
	return Identity{role: RoleAnonymous}
}

func Presenter(sessionId string) Identity {
	return Identity{role: RolePresenter, sessionId: sessionId}
}

func (i Identity) IsPresenter() bool {
	return i.role == RolePresenter
}

// SessionId is empty for anonymous identities.
func (i Identity) SessionId() string {
	return i.sessionId
}

// CanModerate reports whether the identity is the presenter of sessionId.
func (i Identity) CanModerate(sessionId string) bool {
	return i.IsPresenter() && sessionId != "" && i.sessionId == sessionId
}

func (i Identity) String() string {
	if i.IsPresenter() {
		return "presenter:" + i.sessionId
	}
	return "anonymous"
}

// SecretValidator checks a presenter secret against a session.
type SecretValidator interface {
	ValidatePresenterSecret(ctx context.Context, sessionId, secret string) (bool, error)
}

type Authorizer struct {
	tokens    *TokenIssuer
	validator SecretValidator
}

func NewAuthorizer(tokens *TokenIssuer, validator SecretValidator) *Authorizer {
	return &Authorizer{tokens: tokens, validator: validator}
}

// Authorize resolves a token to an identity. An empty token is anonymous;
// any other token must be valid for an existing session.
func (a *Authorizer) Authorize(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Anonymous(), nil
	}

	sessionId, secret, err := a.tokens.Parse(token)
	if err != nil {
		return Identity{}, err
	}

	ok, err := a.validator.ValidatePresenterSecret(ctx, sessionId, secret)
	if err != nil {
		return Identity{}, fmt.Errorf("validate presenter secret: %w", err)
	}
	if !ok {
		return Identity{}, fmt.Errorf("%w: secret mismatch", ErrInvalidToken)
	}

	return Presenter(sessionId), nil
}

// BearerToken extracts the token from an Authorization header. It returns
// an empty string when the header is absent or not a bearer token.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
