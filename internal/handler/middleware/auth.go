package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/thatlq1812/user-agreement/internal/domain"
	"github.com/thatlq1812/user-agreement/internal/handler/response"
)

// Context keys set by Auth
const (
	ctxUserID = "user_id"
	ctxRoles  = "roles"
	ctxEmail  = "email"
)

// Claims carried by the bearer token
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the user id, falling back to the standard sub claim.
func (c *Claims) Principal() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// ParseToken validates an HS256 token signed with secret.
func ParseToken(raw, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Principal() == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// SignToken issues a token for claims. Used by the seed command and tests.
func SignToken(claims *Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	// Format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setPrincipal(c *gin.Context, claims *Claims) {
	c.Set(ctxUserID, claims.Principal())
	c.Set(ctxRoles, claims.Roles)
	c.Set(ctxEmail, claims.Email)
}

// Auth requires a valid bearer token
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Missing or invalid authorization header")
			return
		}

		claims, err := ParseToken(raw, secret)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid token")
			return
		}

		setPrincipal(c, claims)
		c.Next()
	}
}

// OptionalAuth sets the principal when a valid token is present
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, ok := bearer(c); ok {
			if claims, err := ParseToken(raw, secret); err == nil {
				setPrincipal(c, claims)
			}
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the principal has one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, have := range Roles(c) {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "Insufficient permissions")
	}
}

// AccountLookup is the part of the account repository ActiveAccount needs.
type AccountLookup interface {
	GetByID(ctx context.Context, userID string) (*domain.Account, error)
}

// ActiveAccount refuses principals whose account was deactivated. A valid token
// outlives the block, so the account is checked on every request. Principals
// without a local account pass.
func ActiveAccount(accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}

		account, err := accounts.GetByID(c.Request.Context(), userID)
		if err != nil {
			response.FromError(c, err)
			return
		}
		if account != nil && !account.Active {
			response.FromError(c, fmt.Errorf("user %s: %w", userID, domain.ErrAccountBlocked))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id
func UserID(c *gin.Context) (string, bool) {
	v := c.GetString(ctxUserID)
	return v, v != ""
}

func Roles(c *gin.Context) []string {
	return c.GetStringSlice(ctxRoles)
}
