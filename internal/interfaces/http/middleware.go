package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	actorKey        = "actor"
)

// requestIDMiddleware propagates or generates X-Request-ID and stores it
// in the request context, where it becomes the event correlation id.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(port.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", port.RequestIDFromContext(c.Request.Context()),
		)
	}
}

// actorMiddleware resolves the caller from the trusted X-User-ID header.
// Authentication happens upstream; the role always comes from the stored profile.
func actorMiddleware(users port.UserRepository, logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "Missing "+headerUserID+" header")
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			logger.Error("Failed to resolve actor", "user_id", userID, "error", err)
			abortWithError(c, http.StatusInternalServerError, "internal", "Internal error")
			return
		}
		if user == nil || !user.Role.IsValid() {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "Unknown user")
			return
		}

		c.Set(actorKey, user.Actor())
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
