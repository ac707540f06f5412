package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"mulmocast-backend/internal/config"
	"mulmocast-backend/internal/models"
)

const (
	UserIDKey  = "user_id"
	SubjectKey = "subject"
)

// AuthMiddleware requires an HS256 bearer token signed with AUTH_JWT_SECRET.
// A numeric "sub" claim becomes the caller's user id. Without a secret every
// request passes.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AuthJWTSecret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(c, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			unauthorized(c, "empty token")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.AuthJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			var message string
			switch {
			case strings.Contains(err.Error(), "signature is invalid"):
				message = "token signature is invalid"
			case strings.Contains(err.Error(), "token is expired"):
				message = "token has expired"
			default:
				message = "token is malformed"
			}
			unauthorized(c, message)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(c, "invalid token claims")
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			unauthorized(c, "missing subject in token")
			return
		}

		c.Set(SubjectKey, sub)
		if id, err := strconv.ParseInt(sub, 10, 64); err == nil && id > 0 {
			c.Set(UserIDKey, id)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or fallback when the request
// carries none.
func UserID(c *gin.Context, fallback int64) int64 {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return fallback
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: message,
	})
}
