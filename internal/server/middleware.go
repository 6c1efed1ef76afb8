package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/revenuepulse/internal/observability/context"
)

const contextOwnerIDKey = "owner_id"

// AuthRequired resolves the session token into an owner id. Handlers read
// the owner only from the gin context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ownerID := strings.TrimSpace(session.UserID)
		c.Set(contextOwnerIDKey, ownerID)
		c.Request = c.Request.WithContext(obscontext.WithOwnerID(c.Request.Context(), ownerID))
		c.Next()
	}
}

func ownerIDFromContext(c *gin.Context) (string, bool) {
	ownerID := c.GetString(contextOwnerIDKey)
	return ownerID, ownerID != ""
}
