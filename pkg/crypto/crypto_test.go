package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	require.NoError(t, err)
	require.Len(t, token, 64)

	_, err = hex.DecodeString(token)
	require.NoError(t, err)

	other, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}

func TestGenerateTokenRejectsInvalidLength(t *testing.T) {
	_, err := GenerateToken(0)
	require.Error(t, err)
}
