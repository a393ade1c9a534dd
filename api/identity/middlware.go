package identity

import (
	"net/http"
	"strings"

	"github.com/beka-birhanu/vinom-mazesync/infrastruture/token"
	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextParticipantClaims is the key used to store token claims in the Gin context.
	ContextParticipantClaims = "participantClaims"
	// ContextParticipantID is the key used to store the authenticated participant id.
	ContextParticipantID = "participantID"
)

// Authoriz admits requests carrying a bearer token issued to participant.
// A missing or invalid token is rejected with 401; a valid token issued to
// another participant with 403.
func Authoriz(ts i.Tokenizer, participant uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatus(http.StatusUnauthorized) // No token found in the header.
			return
		}

		// Split the "Bearer" prefix from the token.
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatus(http.StatusUnauthorized) // Malformed Authorization header.
			return
		}

		claims, err := ts.Decode(parts[1])
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		id, err := token.ParticipantFrom(claims)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if id != participant {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Set(ContextParticipantClaims, claims)
		c.Set(ContextParticipantID, id)
		c.Next()
	}
}
