package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/richxcame/ride-dispatch/pkg/config"
	"github.com/richxcame/ride-dispatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(userID uuid.UUID, role models.UserRole) Claims {
	return Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func authRouter(cfg config.JWTConfig, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(cfg)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		actor, err := GetActor(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": actor.ID.String(), "role": actor.Role})
	})
	router.GET("/me", handlers...)
	return router
}

func doGet(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret}
	userID := uuid.New()

	t.Run("accepts a valid token", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims(userID, models.RoleDriver))

		w := doGet(authRouter(cfg), "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
		assert.Contains(t, w.Body.String(), `"driver"`)
	})

	t.Run("falls back to the subject claim", func(t *testing.T) {
		claims := validClaims(uuid.Nil, models.RolePassenger)
		claims.Subject = userID.String()
		token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

		w := doGet(authRouter(cfg), "Bearer "+token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
	})

	tests := []struct {
		name          string
		authorization func(t *testing.T) string
	}{
		{"missing header", func(t *testing.T) string { return "" }},
		{"not a bearer token", func(t *testing.T) string { return "Basic abc" }},
		{"wrong secret", func(t *testing.T) string {
			return "Bearer " + signToken(t, "other", jwt.SigningMethodHS256, validClaims(userID, models.RoleDriver))
		}},
		{"wrong algorithm", func(t *testing.T) string {
			return "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS512, validClaims(userID, models.RoleDriver))
		}},
		{"expired", func(t *testing.T) string {
			claims := validClaims(userID, models.RoleDriver)
			claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, claims)
		}},
		{"unknown role", func(t *testing.T) string {
			return "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, validClaims(userID, "admin"))
		}},
		{"no user id", func(t *testing.T) string {
			return "Bearer " + signToken(t, testSecret, jwt.SigningMethodHS256, validClaims(uuid.Nil, models.RoleDriver))
		}},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			w := doGet(authRouter(cfg), tt.authorization(t))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuthMiddleware_Issuer(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret, Issuer: "identity"}
	claims := validClaims(uuid.New(), models.RolePassenger)

	w := doGet(authRouter(cfg), "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, claims))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	claims.Issuer = "identity"
	w = doGet(authRouter(cfg), "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256, claims))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRole(t *testing.T) {
	cfg := config.JWTConfig{Secret: testSecret}
	router := authRouter(cfg, RequireRole(models.RoleDriver))

	driver := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims(uuid.New(), models.RoleDriver))
	passenger := signToken(t, testSecret, jwt.SigningMethodHS256, validClaims(uuid.New(), models.RolePassenger))

	assert.Equal(t, http.StatusOK, doGet(router, "Bearer "+driver).Code)
	assert.Equal(t, http.StatusForbidden, doGet(router, "Bearer "+passenger).Code)
}

func TestGetActor_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, err := GetActor(c)
	assert.Error(t, err)

	actor := models.Actor{ID: uuid.New(), Role: models.RolePassenger}
	SetActor(c, actor)
	got, err := GetActor(c)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
	assert.Equal(t, actor.ID, c.MustGet(UserIDKey))
}
