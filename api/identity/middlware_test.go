package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/infrastruture/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthoriz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt := token.NewJwtService("secret", "vinom-mazesync")
	participant := uuid.New()

	router := gin.New()
	router.GET("/", Authoriz(jwt, participant), func(c *gin.Context) {
		id, _ := c.Get(ContextParticipantID)
		c.String(http.StatusOK, id.(uuid.UUID).String())
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Missing header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("").Code)
	})

	t.Run("Malformed header", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("Token abc").Code)
	})

	t.Run("Invalid token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("Bearer abc").Code)
	})

	t.Run("Token without participant", func(t *testing.T) {
		tok, err := jwt.Generate(map[string]interface{}{"role": "viewer"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, do("Bearer "+tok).Code)
	})

	t.Run("Token for another participant", func(t *testing.T) {
		tok, err := jwt.IssueParticipant(uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, do("Bearer "+tok).Code)
	})

	t.Run("Token for this participant", func(t *testing.T) {
		tok, err := jwt.IssueParticipant(participant, time.Minute)
		require.NoError(t, err)
		rec := do("bearer " + tok)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, participant.String(), rec.Body.String())
	})
}
