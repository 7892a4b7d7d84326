package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/models"
)

const (
	actorContextKey = "actor"
	// UserIDKey holds the verified user id for logging and rate limiting.
	UserIDKey = "user_id"
	// UserRoleKey holds the verified role.
	UserRoleKey = "user_role"
)

// Claims represents JWT claims issued by the identity service.
type Claims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor resolves the claims into a verified actor. The subject claim is
// accepted when user_id is absent.
func (c *Claims) Actor() (models.Actor, error) {
	id := c.UserID
	if id == uuid.Nil && c.Subject != "" {
		parsed, err := uuid.Parse(c.Subject)
		if err != nil {
			return models.Actor{}, fmt.Errorf("invalid subject: %w", err)
		}
		id = parsed
	}
	if id == uuid.Nil {
		return models.Actor{}, errors.New("token has no user id")
	}
	if !c.Role.Valid() {
		return models.Actor{}, fmt.Errorf("unsupported role %q", c.Role)
	}
	return models.Actor{ID: id, Role: c.Role}, nil
}

// AuthMiddleware verifies HS256 bearer tokens and attaches the actor to
// the request.
func AuthMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	secret := []byte(cfg.Secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.AppErrorResponse(c, common.NewUnauthorizedError("authorization required"))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			common.AppErrorResponse(c, common.NewUnauthorizedError("invalid authorization header format"))
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			common.AppErrorResponse(c, common.NewUnauthorizedError("invalid or expired token"))
			c.Abort()
			return
		}

		actor, err := claims.Actor()
		if err != nil {
			logger.DebugContext(c.Request.Context(), "rejected token claims")
			common.AppErrorResponse(c, common.NewUnauthorizedError("invalid token claims"))
			c.Abort()
			return
		}

		SetActor(c, actor)
		c.Next()
	}
}

// SetActor attaches a verified actor to the gin context.
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorContextKey, actor)
	c.Set(UserIDKey, actor.ID)
	c.Set(UserRoleKey, actor.Role)
}

// GetActor returns the verified actor of the request.
func GetActor(c *gin.Context) (models.Actor, error) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return models.Actor{}, common.ErrUnauthorized
	}
	actor, ok := value.(models.Actor)
	if !ok {
		return models.Actor{}, common.ErrUnauthorized
	}
	return actor, nil
}

// RequireRole middleware checks if user has required role
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			common.AppErrorResponse(c, common.NewUnauthorizedError("user role not found"))
			c.Abort()
			return
		}

		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}

		common.ErrorResponse(c, http.StatusForbidden, "insufficient permissions")
		c.Abort()
	}
}
