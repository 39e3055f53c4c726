package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
)

const (
	// UserIDHeader carries the caller identity resolved by the upstream API gateway.
	UserIDHeader = "X-User-ID"
	// UserIDKey is the context key for user ID.
	UserIDKey = "user_id"
)

// Identity returns a middleware that reads the caller identity forwarded by
// the API gateway. If optional is false, requests without a valid identity
// are rejected.
func Identity(optional bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.GetHeader(UserIDHeader))
		if err != nil || userID == uuid.Nil {
			if !optional {
				c.AbortWithStatusJSON(http.StatusUnauthorized, model.ErrorResponse{
					Code:    "unauthorized",
					Message: "Caller identity required",
				})
				return
			}
			c.Next()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// GetUserID returns the user ID from context.
// Returns uuid.Nil if not found.
func GetUserID(c *gin.Context) uuid.UUID {
	if val, exists := c.Get(UserIDKey); exists {
		if userID, ok := val.(uuid.UUID); ok {
			return userID
		}
	}
	return uuid.Nil
}
