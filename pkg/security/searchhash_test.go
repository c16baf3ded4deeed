package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchableHashVerifies(t *testing.T) {
	hash, err := GenerateSearchableHash("123-45-6789")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "hash_"))

	assert.True(t, VerifySearchableHash("123-45-6789", hash))
	assert.False(t, VerifySearchableHash("987-65-4321", hash))
}

func TestSearchableHashIsSalted(t *testing.T) {
	first, err := GenerateSearchableHash("value")
	require.NoError(t, err)
	second, err := GenerateSearchableHash("value")
	require.NoError(t, err)

	// Fresh salt per call, but both verify against the same plaintext.
	assert.NotEqual(t, first, second)
	assert.True(t, VerifySearchableHash("value", first))
	assert.True(t, VerifySearchableHash("value", second))
}

func TestSearchableHashNormalizesInput(t *testing.T) {
	hash, err := GenerateSearchableHash("  Jane.Doe@Example.COM ")
	require.NoError(t, err)

	assert.True(t, VerifySearchableHash("jane.doe@example.com", hash))
}

func TestVerifySearchableHashRejectsMalformed(t *testing.T) {
	assert.False(t, VerifySearchableHash("value", ""))
	assert.False(t, VerifySearchableHash("value", "hash_only-two"))
	assert.False(t, VerifySearchableHash("value", "hash_zz_zz"))
	assert.False(t, VerifySearchableHash("value", "enc_v1_aa_bb_cc"))
}
