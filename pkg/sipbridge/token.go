package sipbridge

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const gatewayTokenTTL = 10 * time.Minute

// GatewayToken is a short-lived credential for deployments that front the
// realtime endpoint with a token-checking proxy instead of exposing the
// raw API key to the edge.
type GatewayToken struct {
	Token     string
	ExpiresAt time.Time
}

// GenerateGatewayToken signs an HS256 JWT with the API key as secret.
// The key itself never appears in the claims, only a truncated hint.
func GenerateGatewayToken(apiKey, sessionID string) (*GatewayToken, error) {
	if apiKey == "" {
		return nil, NewBridgeError("API key required for gateway token", ErrCodeTokenFailed)
	}

	expiresAt := time.Now().Add(gatewayTokenTTL)
	hint := apiKey
	if len(hint) > 8 {
		hint = hint[:8] + "..."
	}

	claims := jwt.MapClaims{
		"key_hint": hint,
		"exp":      expiresAt.Unix(),
	}
	if sessionID != "" {
		claims["session_id"] = sessionID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiKey))
	if err != nil {
		return nil, WrapError(err, ErrCodeTokenFailed)
	}

	return &GatewayToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// DecodeGatewayToken verifies a token against the API key and returns its
// claims. Used by gateway-side checks and tests.
func DecodeGatewayToken(token, apiKey string) (map[string]interface{}, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(apiKey), nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeTokenFailed)
	}

	if claims, ok := parsed.Claims.(jwt.MapClaims); ok && parsed.Valid {
		return map[string]interface{}(claims), nil
	}
	return nil, NewBridgeError("Invalid gateway token", ErrCodeTokenFailed)
}

func (t *GatewayToken) Expired() bool {
	return time.Now().After(t.ExpiresAt)
}
