package security

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPSecret(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	assert.Len(t, raw, 20)

	other, err := GenerateTOTPSecret()
	require.NoError(t, err)
	assert.NotEqual(t, secret, other)
}

func TestProvisioningURI(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	uri, err := ProvisioningURI("HireWire", "jane@example.com", secret)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
	assert.Contains(t, uri, "issuer=HireWire")
	assert.Contains(t, uri, "secret="+secret)
}

func TestVerifyTOTPAcceptsSkewedCodes(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 15, 9, 15, 0, time.UTC)
	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)

	// Valid at its own step and up to two steps away in either direction.
	assert.True(t, VerifyTOTP(code, secret, now))
	assert.True(t, VerifyTOTP(code, secret, now.Add(60*time.Second)))
	assert.True(t, VerifyTOTP(code, secret, now.Add(-60*time.Second)))

	// Outside the window it must be rejected.
	assert.False(t, VerifyTOTP(code, secret, now.Add(5*time.Minute)))
	assert.False(t, VerifyTOTP("000000", secret, now))
}

func TestMatchTOTPStepFindsExactStep(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	codeTime := time.Date(2026, 3, 14, 15, 9, 15, 0, time.UTC)
	code, err := totp.GenerateCode(secret, codeTime)
	require.NoError(t, err)

	// Ask one step later: the matched step is still the code's own step.
	step, ok := MatchTOTPStep(code, secret, codeTime.Add(30*time.Second))
	require.True(t, ok)
	assert.Equal(t, TimeStep(codeTime), step)

	_, ok = MatchTOTPStep("000000", secret, codeTime)
	assert.False(t, ok)
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(8)
	require.NoError(t, err)
	require.Len(t, codes, 8)

	seen := map[string]struct{}{}
	for _, code := range codes {
		assert.Regexp(t, `^[A-HJ-NP-Z2-9]{5}-[A-HJ-NP-Z2-9]{5}$`, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 8)
}

func TestBackupCodeHashRoundTrip(t *testing.T) {
	codes, err := GenerateBackupCodes(1)
	require.NoError(t, err)

	hash, err := HashBackupCode(codes[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := VerifyBackupCode(codes[0], hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyBackupCode("WRONG-CODE1", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}
