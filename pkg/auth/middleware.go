// Package auth verifies operator access tokens issued by the identity
// service and enforces per-route permissions.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/staffline/backoffice/pkg/actor"
	"github.com/staffline/backoffice/pkg/config"
	apperrors "github.com/staffline/backoffice/pkg/errors"
	"github.com/staffline/backoffice/pkg/httputil"
	"github.com/staffline/backoffice/pkg/logger"
	"github.com/staffline/backoffice/pkg/permissions"
)

// Claims are the access token claims the payroll service relies on
type Claims struct {
	jwt.RegisteredClaims
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type permissionsKey struct{}

// Authenticator validates HMAC-signed bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	log    *logger.Logger
}

// NewAuthenticator creates an Authenticator from the JWT config
func NewAuthenticator(cfg *config.JWTConfig, log *logger.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		log:    log,
	}
}

// Middleware rejects requests without a valid bearer token and stores the
// operator and their permissions in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.Error(w, apperrors.Unauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.Error(w, apperrors.Unauthorized("invalid authorization header format"))
			return
		}

		claims, err := a.Parse(parts[1])
		if err != nil {
			a.log.Debug().Err(err).Msg("token validation failed")
			if errors.Is(err, jwt.ErrTokenExpired) {
				httputil.Error(w, apperrors.TokenExpired())
			} else {
				httputil.Error(w, apperrors.TokenInvalid())
			}
			return
		}

		ctx := httputil.WithUserContext(r.Context(), claims.Subject, claims.Role)
		ctx = actor.WithActor(ctx, &actor.Actor{ID: claims.Subject, RoleName: claims.Role})
		ctx = context.WithValue(ctx, permissionsKey{}, claims.Permissions)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Parse validates a raw token and returns its claims
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// RequirePermission only lets requests through whose token grants perm
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !permissions.HasPermission(Permissions(r.Context()), perm) {
				httputil.Error(w, apperrors.Forbidden("missing permission "+perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Permissions returns the permissions granted to the current operator
func Permissions(ctx context.Context) []string {
	perms, _ := ctx.Value(permissionsKey{}).([]string)
	return perms
}
