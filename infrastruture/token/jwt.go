package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/beka-birhanu/vinom-mazesync/service/i"
	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

// ClaimParticipantID is the claim carrying the participant a token was issued to.
const ClaimParticipantID = "participantID"

var _ i.Tokenizer = &JwtService{}

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongIssuer   = errors.New("token issued by another service")
	ErrNoParticipant = errors.New("token carries no participant")
	errSigningMethod = errors.New("unexpected signing method")
)

// JwtService signs and verifies HS256 participant tokens.
type JwtService struct {
	secretKey string
	issuer    string
}

// NewJwtService creates a JWT service signing with secretKey and stamping issuer.
func NewJwtService(secretKey, issuer string) *JwtService {
	return &JwtService{
		secretKey: secretKey,
		issuer:    issuer,
	}
}

// Generate creates a JWT for the given claims.
func (s *JwtService) Generate(claims map[string]interface{}, expTime time.Duration) (string, error) {
	now := time.Now().UTC()
	jwtClaims := jwt.MapClaims{
		"exp": now.Add(expTime).Unix(),
		"iat": now.Unix(),
		"iss": s.issuer,
	}
	for key, val := range claims {
		jwtClaims[key] = val
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims)
	return token.SignedString([]byte(s.secretKey))
}

// Decode parses and validates a JWT, returning the claims if valid.
func (s *JwtService) Decode(tokenString string) (map[string]interface{}, error) {
	token, err := jwt.Parse(tokenString, s.getSigningKey)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(s.issuer, true) {
		return nil, ErrWrongIssuer
	}
	return claims, nil
}

// IssueParticipant creates a token for participant id.
func (s *JwtService) IssueParticipant(id uuid.UUID, expTime time.Duration) (string, error) {
	return s.Generate(map[string]interface{}{ClaimParticipantID: id.String()}, expTime)
}

// ParticipantFrom extracts the participant id from decoded claims.
func ParticipantFrom(claims map[string]interface{}) (uuid.UUID, error) {
	raw, ok := claims[ClaimParticipantID].(string)
	if !ok {
		return uuid.Nil, ErrNoParticipant
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrNoParticipant, err)
	}
	return id, nil
}

// getSigningKey returns the signing key for token validation.
func (s *JwtService) getSigningKey(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errSigningMethod
	}
	return []byte(s.secretKey), nil
}
