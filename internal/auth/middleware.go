package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"agencyledger/internal/core"
	"agencyledger/internal/log"
)

type contextKey string

const (
	ownerKey contextKey = "owner_id"
	tokenKey contextKey = "bearer_token"
)

var (
	errMissingToken = core.Unauthorized(core.CodeUnauthorized, "Missing or invalid authorization header")
	errInvalidToken = core.Unauthorized(core.CodeInvalidToken, "Token verification failed")
	errRevokedToken = core.Unauthorized(core.CodeTokenBlacklisted, "Token has been revoked")
)

// ErrorWriter renders an error response; the HTTP layer supplies its
// envelope writer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Authenticator verifies bearer tokens and tracks revocations.
type Authenticator struct {
	signer      *Signer
	revocations RevocationStore
	logger      *log.Logger
}

func NewAuthenticator(signer *Signer, revocations RevocationStore, logger *log.Logger) *Authenticator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Authenticator{
		signer:      signer,
		revocations: revocations,
		logger:      logger.WithComponent(log.ComponentAuth),
	}
}

// Authenticate resolves the owner for a raw bearer token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Claims, error) {
	claims, err := a.signer.Verify(token)
	if err != nil {
		a.logger.DebugContext(ctx, "Rejected bearer token",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeAuth)
		return Claims{}, errInvalidToken
	}
	revoked, err := a.revocations.IsRevoked(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, errRevokedToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid, unrevoked bearer token and
// stores the owner in the request context.
func (a *Authenticator) Middleware(writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, errMissingToken)
				return
			}
			claims, err := a.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ownerKey, claims.Owner)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logout revokes the token that authenticated ctx.
func (a *Authenticator) Logout(ctx context.Context) error {
	token, _ := ctx.Value(tokenKey).(string)
	if token == "" {
		return errMissingToken
	}
	claims, err := a.signer.Verify(token)
	if err != nil && !errors.Is(err, ErrExpiredToken) {
		return errInvalidToken
	}
	if err := a.revocations.Revoke(ctx, token, claims.ExpiresAt); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "Token revoked", log.FieldOwnerID, claims.Owner.String())
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// OwnerFromContext returns the authenticated owner.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerKey).(uuid.UUID)
	return id, ok
}

// ContextWithOwner is used by tests and by callers that authenticate
// outside HTTP.
func ContextWithOwner(ctx context.Context, owner uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}
