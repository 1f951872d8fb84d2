package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by JWTAuth
const (
	AuthContextKey = "user_id"
	PlanContextKey = "plan"
	RoleContextKey = "role"
)

// Roles carried in tokens
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
)

var jwtSecret string

// Claims represents JWT claims. Plan is the viewer's subscription tier as
// issued by the identity provider.
type Claims struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SetJWTSecret sets the JWT secret for the middleware
func SetJWTSecret(secret string) {
	jwtSecret = secret
}

func parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}

// JWTAuth middleware validates JWT tokens
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		claims, err := parseToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(AuthContextKey, claims.UserID)
		c.Set(PlanContextKey, models.ParsePlanTier(claims.Plan))
		c.Set(RoleContextKey, claims.Role)
		c.Next()
	}
}

// RequireRole rejects requests whose token does not carry role. It must run
// after JWTAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.GetString(RoleContextKey); got != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GenerateToken generates a JWT token for a user
func GenerateToken(userID string, plan models.PlanTier, role string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Plan:   string(plan),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// GetUserID retrieves the user ID from the context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(AuthContextKey)
	if !exists {
		return "", false
	}

	userIDStr, ok := userID.(string)
	return userIDStr, ok
}

// PlanFromContext returns the plan tier placed in the context by JWTAuth
func PlanFromContext(c *gin.Context) (models.PlanTier, bool) {
	v, exists := c.Get(PlanContextKey)
	if !exists {
		return "", false
	}
	plan, ok := v.(models.PlanTier)
	return plan, ok && plan != ""
}
