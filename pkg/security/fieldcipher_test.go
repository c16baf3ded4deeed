package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *FieldCipher {
	t.Helper()
	cipher, err := NewFieldCipher("test-master-passphrase")
	require.NoError(t, err)
	return cipher
}

func TestNewFieldCipherRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewFieldCipher("")
	require.Error(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	cipher := newTestCipher(t)

	for _, plaintext := range []string{"123-45-6789", "", "héllo wörld", strings.Repeat("x", 4096)} {
		enc, err := cipher.Encrypt(plaintext)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(enc, "enc_v1_"))

		dec, err := cipher.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, plaintext, dec)
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	cipher := newTestCipher(t)

	first, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)

	// Fresh IV per call: identical plaintexts never share a wire string.
	assert.NotEqual(t, first, second)
}

func TestEncryptIsIdempotentOnWireFormat(t *testing.T) {
	cipher := newTestCipher(t)

	once, err := cipher.Encrypt("sensitive")
	require.NoError(t, err)
	twice, err := cipher.Encrypt(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestDecryptPassesThroughPlainValues(t *testing.T) {
	cipher := newTestCipher(t)

	for _, value := range []string{"plain text", "", "enc_but_not_wire", "enc_v1_tooshort"} {
		dec, err := cipher.Decrypt(value)
		require.NoError(t, err)
		assert.Equal(t, value, dec)
	}
}

// flipHexChar flips one hex character so the segment stays valid hex but
// the decoded bytes differ.
func flipHexChar(s string, idx int) string {
	b := []byte(s)
	if b[idx] == '0' {
		b[idx] = '1'
	} else {
		b[idx] = '0'
	}
	return string(b)
}

func TestDecryptDetectsTampering(t *testing.T) {
	cipher := newTestCipher(t)

	enc, err := cipher.Encrypt("account 4532-1111")
	require.NoError(t, err)
	parts := strings.Split(enc, "_")
	require.Len(t, parts, 5)

	// Tamper with the auth tag segment.
	tampered := strings.Join([]string{parts[0], parts[1], parts[2], flipHexChar(parts[3], 0), parts[4]}, "_")
	_, err = cipher.Decrypt(tampered)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)

	// Tamper with the ciphertext segment.
	tampered = strings.Join([]string{parts[0], parts[1], parts[2], parts[3], flipHexChar(parts[4], 0)}, "_")
	_, err = cipher.Decrypt(tampered)
	require.ErrorAs(t, err, &decErr)
}

func TestDecryptRejectsUnknownVersion(t *testing.T) {
	cipher := newTestCipher(t)

	enc, err := cipher.Encrypt("value")
	require.NoError(t, err)
	v2 := strings.Replace(enc, "enc_v1_", "enc_v2_", 1)

	_, err = cipher.Decrypt(v2)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Error(), "v2")
}

func TestParseEncryptedField(t *testing.T) {
	cipher := newTestCipher(t)

	enc, err := cipher.Encrypt("value")
	require.NoError(t, err)

	field, ok := ParseEncryptedField(enc)
	require.True(t, ok)
	assert.Equal(t, "v1", field.Version)
	assert.Len(t, field.IV, ivLen)
	assert.Len(t, field.Tag, tagLen)

	_, ok = ParseEncryptedField("not encrypted")
	assert.False(t, ok)
	_, ok = ParseEncryptedField("enc_v1_zz_zz_zz")
	assert.False(t, ok)
}

func TestRecordEncryptionTouchesOnlySensitiveFields(t *testing.T) {
	cipher := newTestCipher(t)

	record := map[string]any{
		"ssn":        "123-45-6789",
		"salary":     "95000",
		"first_name": "Ada",
		"age":        37,
	}
	require.NoError(t, cipher.EncryptRecord(record))

	assert.True(t, strings.HasPrefix(record["ssn"].(string), "enc_v1_"))
	assert.True(t, strings.HasPrefix(record["salary"].(string), "enc_v1_"))
	assert.Equal(t, "Ada", record["first_name"])
	assert.Equal(t, 37, record["age"])

	// Encrypting again must not double-encrypt.
	ssnOnce := record["ssn"]
	require.NoError(t, cipher.EncryptRecord(record))
	assert.Equal(t, ssnOnce, record["ssn"])

	require.NoError(t, cipher.DecryptRecord(record))
	assert.Equal(t, "123-45-6789", record["ssn"])
	assert.Equal(t, "95000", record["salary"])
}

func TestHealthCheck(t *testing.T) {
	cipher := newTestCipher(t)

	health := cipher.HealthCheck()
	assert.True(t, health.CanEncrypt)
	assert.True(t, health.CanDecrypt)
	assert.Equal(t, "ok", health.KeyStatus)
}
