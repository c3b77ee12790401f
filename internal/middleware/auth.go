// Package middleware provides authentication, request correlation and panic
// recovery middleware for the Gin web framework.
package middleware

import (
	"strconv"
	"strings"
	"time"

	contextutils "examprep/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Session keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
)

// Claims are the bearer token claims; Subject carries the numeric user id
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// MintToken signs an HS256 bearer token for userID valid for lifetime
func MintToken(secret string, userID int, username string, lifetime time.Duration) (string, error) {
	if secret == "" {
		return "", contextutils.NewErrorf(contextutils.ErrMissingRequired, "jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies a bearer token and returns the user id it names
func ParseToken(secret, tokenString string) (int, error) {
	if secret == "" {
		return 0, contextutils.ErrUnauthorized
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	tok, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0, contextutils.ErrUnauthorized
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID <= 0 {
		return 0, contextutils.ErrUnauthorized
	}
	return userID, nil
}

// sessionUserID reads the user id stored by the login flow. Cookie codecs may
// decode numbers as float64.
func sessionUserID(c *gin.Context) (int, bool) {
	switch v := sessions.Default(c).Get(UserIDKey).(type) {
	case int:
		return v, v > 0
	case int64:
		return int(v), v > 0
	case float64:
		return int(v), v > 0
	}
	return 0, false
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth accepts a session cookie or, failing that, an HS256 bearer token
// signed with jwtSecret. The user id is stored on the gin and request contexts.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := sessionUserID(c)
		if !ok {
			if token := bearerToken(c); token != "" {
				if id, err := ParseToken(jwtSecret, token); err == nil {
					userID, ok = id, true
				}
			}
		}
		if !ok {
			HandleAppError(c, contextutils.NewErrorf(contextutils.ErrUnauthorized, "Authentication required"))
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// UserID returns the id stored by RequireAuth
func UserID(c *gin.Context) (int, bool) {
	id, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := id.(int)
	return userID, ok
}
