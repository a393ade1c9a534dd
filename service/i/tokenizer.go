package i

import (
	"time"

	"github.com/google/uuid"
)

// Tokenizer issues and verifies the bearer tokens guarding a node's control API.
type Tokenizer interface {
	// Generate signs arbitrary claims valid for expTime.
	Generate(claims map[string]interface{}, expTime time.Duration) (string, error)

	// IssueParticipant signs a token bound to participant id.
	IssueParticipant(id uuid.UUID, expTime time.Duration) (string, error)

	// Decode validates a token and returns its claims.
	Decode(token string) (map[string]interface{}, error)
}
