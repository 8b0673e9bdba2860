package okta

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePKCECodes(t *testing.T) {
	codes, err := GeneratePKCECodes()
	require.NoError(t, err)

	// 96 random bytes encode to 128 unpadded base64 characters.
	assert.Len(t, codes.CodeVerifier, 128)
	assert.NotContains(t, codes.CodeVerifier, "=")

	hash := sha256.Sum256([]byte(codes.CodeVerifier))
	expected := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
	assert.Equal(t, expected, codes.CodeChallenge)
}

func TestGeneratePKCECodesUnique(t *testing.T) {
	first, err := GeneratePKCECodes()
	require.NoError(t, err)
	second, err := GeneratePKCECodes()
	require.NoError(t, err)

	assert.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
	assert.NotEqual(t, first.CodeChallenge, second.CodeChallenge)
}
