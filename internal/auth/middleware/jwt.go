package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/consensus-backend/internal/auth"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

const ownerKey = "user_id"

// OptionalJWTAuth resolves the owner when a valid bearer token is present.
// Missing or invalid tokens leave the request anonymous.
func OptionalJWTAuth(jwtManager *auth.JWTManager, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		token, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.Next()
			return
		}

		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			log.Debug("ignoring invalid access token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			c.Next()
			return
		}

		c.Set(ownerKey, claims.UserID)

		ctx := auth.WithOwner(c.Request.Context(), claims.UserID)
		ctx = logger.WithUserID(ctx, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID returns the owner set by OptionalJWTAuth
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ownerKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// CORS allows browser clients on other origins
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, "+logger.SessionHeader)
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
