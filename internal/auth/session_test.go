// internal/auth/session_test.go
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTripCarriesIssuer(t *testing.T) {
	Init()

	tok, err := CreateJWT("user-123")
	require.NoError(t, err)

	sub, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, tokenIssuer, claims["iss"])
}

func TestJWTRejectsForeignIssuer(t *testing.T) {
	Init()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": "user-123",
		"iss": "someone-else",
	})
	signed, err := token.SignedString(privateKey)
	require.NoError(t, err)

	_, err = AuthenticateJWT(signed)
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := CreateHash("hunter2", Params)
	require.NoError(t, err)

	ok, err := ComparePasswordAndHash("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ComparePasswordAndHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}
