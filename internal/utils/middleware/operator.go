package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopcore/installment/internal/model"
)

// OperatorAuthorizer decides which callers may run back-office actions such
// as approving refunds.
type OperatorAuthorizer struct {
	userIDs map[uuid.UUID]struct{}
}

// NewOperatorAuthorizer creates an authorizer for the given operator user IDs.
// Entries that are not valid UUIDs are ignored.
func NewOperatorAuthorizer(userIDs []string) *OperatorAuthorizer {
	return &OperatorAuthorizer{userIDs: parseUUIDSet(userIDs)}
}

// IsOperator reports whether userID belongs to an operator.
func (a *OperatorAuthorizer) IsOperator(userID uuid.UUID) bool {
	if userID == uuid.Nil {
		return false
	}
	_, ok := a.userIDs[userID]
	return ok
}

// RequireOperator rejects callers that are not operators. It must run after Identity.
func (a *OperatorAuthorizer) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.IsOperator(GetUserID(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ErrorResponse{
				Code:    "forbidden",
				Message: "Operator access required",
			})
			return
		}
		c.Next()
	}
}

func parseUUIDSet(values []string) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(values))
	for _, v := range values {
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil || id == uuid.Nil {
			continue
		}
		set[id] = struct{}{}
	}
	return set
}
