package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	RoleID int    `json:"role_id"`
	jwt.RegisteredClaims
}

var errBadAuthHeader = errors.New("invalid authorization header format")

// JWTSecret returns the signing key for operator tokens.
func JWTSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET"))
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", nil
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", errBadAuthHeader
	}
	return tokenString, nil
}

// AuthMiddleware validates JWT token and requires an enabled operator account.
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			db = config.DB
		}

		tokenString, err := bearerToken(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		claims, err := ParseToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// Check if user still exists
		var user models.User
		if err := db.Where("id = ? AND enabled = ?", claims.UserID, true).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			c.Abort()
			return
		}

		setClaims(c, claims.UserID, user.Email, user.RoleID)
		c.Next()
	}
}

// OptionalAuth records the caller's role when a valid token is presented and
// lets the request through either way. SWORD clients never send tokens.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err == nil && tokenString != "" {
			if claims, err := ParseToken(tokenString); err == nil {
				setClaims(c, claims.UserID, claims.Email, claims.RoleID)
			}
		}
		c.Next()
	}
}

func setClaims(c *gin.Context, userID uint, email string, roleID int) {
	c.Set("userID", userID)
	c.Set("email", email)
	c.Set("roleID", roleID)
}

// HasRole reports whether the authenticated caller holds one of roleIDs.
func HasRole(c *gin.Context, roleIDs ...int) bool {
	value, exists := c.Get("roleID")
	if !exists {
		return false
	}
	userRole, ok := value.(int)
	if !ok {
		return false
	}
	for _, roleID := range roleIDs {
		if userRole == roleID {
			return true
		}
	}
	return false
}

// RequireRole checks if user has specific role
func RequireRole(roleIDs ...int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get("roleID"); !exists {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found"})
			c.Abort()
			return
		}
		if !HasRole(c, roleIDs...) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentEmail returns the authenticated operator's email, if any.
func CurrentEmail(c *gin.Context) string {
	return c.GetString("email")
}
