package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Wire format: enc_v1_<ivHex>_<authTagHex>_<cipherHex>.
// The version token lets the decrypt path dispatch if the algorithm ever
// changes; v1 is AES-256-GCM with a 12-byte IV and 16-byte tag.
const (
	encPrefix  = "enc"
	encVersion = "v1"

	keyLen        = 32
	ivLen         = 12
	tagLen        = 16
	kdfIterations = 600000 // OWASP recommendation for PBKDF2-SHA256
)

// Application-level KDF salt. Fixed so the same passphrase always derives the
// same key; rotating the passphrase is a key-rotation event that invalidates
// old ciphertexts unless they are re-encrypted.
var kdfSalt = []byte("hirewire-authcore-field-kdf-v1")

// DecryptionError reports a failed decryption: malformed wire data or an
// authentication tag mismatch (corrupted or tampered ciphertext).
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// EncryptedField is a parsed wire-format value.
type EncryptedField struct {
	Version string
	IV      []byte
	Tag     []byte
	Cipher  []byte
}

// ParseEncryptedField reports whether s is a well-formed encrypted field and
// returns its parsed segments. All format sniffing goes through here; call
// sites must not test string prefixes themselves.
func ParseEncryptedField(s string) (EncryptedField, bool) {
	parts := strings.Split(s, "_")
	if len(parts) != 5 || parts[0] != encPrefix {
		return EncryptedField{}, false
	}
	iv, err := hex.DecodeString(parts[2])
	if err != nil {
		return EncryptedField{}, false
	}
	tag, err := hex.DecodeString(parts[3])
	if err != nil {
		return EncryptedField{}, false
	}
	ct, err := hex.DecodeString(parts[4])
	if err != nil {
		return EncryptedField{}, false
	}
	return EncryptedField{Version: parts[1], IV: iv, Tag: tag, Cipher: ct}, true
}

// FieldCipher encrypts and decrypts individual string fields with a key
// derived from the application master passphrase. Construct one per process
// and inject it; there is no package-level instance.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives the symmetric key from passphrase via PBKDF2-SHA256.
// The passphrase comes from environment configuration; an empty value is a
// deployment error and fails construction.
func NewFieldCipher(passphrase string) (*FieldCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("field cipher: empty encryption passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), kdfSalt, kdfIterations, keyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Encrypt returns the wire-format ciphertext of plaintext. Input that is
// already in wire format is returned unchanged, so persisting a record twice
// cannot double-encrypt a field. A fresh IV is drawn per call; two calls with
// the same plaintext never produce the same wire string.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	if _, ok := ParseEncryptedField(plaintext); ok {
		return plaintext, nil
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("field cipher: iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	return fmt.Sprintf("%s_%s_%s_%s_%s",
		encPrefix, encVersion,
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	), nil
}

// Decrypt returns the plaintext of a wire-format value. Input that does not
// match the wire format is returned unchanged (the field was never
// encrypted). A tag mismatch or malformed segment fails closed with a
// *DecryptionError; tampered ciphertext is never surfaced as plaintext.
func (c *FieldCipher) Decrypt(value string) (string, error) {
	field, ok := ParseEncryptedField(value)
	if !ok {
		return value, nil
	}

	switch field.Version {
	case encVersion:
	default:
		return "", &DecryptionError{Reason: fmt.Sprintf("unsupported format version %q", field.Version)}
	}
	if len(field.IV) != ivLen || len(field.Tag) != tagLen {
		return "", &DecryptionError{Reason: "malformed iv or tag segment"}
	}

	sealed := append(append([]byte{}, field.Cipher...), field.Tag...)
	plaintext, err := c.aead.Open(nil, field.IV, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Reason: "authentication tag mismatch", Err: err}
	}
	return string(plaintext), nil
}

// SensitiveFields is the explicit set of record keys whose string values are
// encrypted at rest. New sensitive fields must be added here; matching is
// exact, never inferred from naming patterns.
var SensitiveFields = map[string]struct{}{
	"ssn":               {},
	"bank_account":      {},
	"routing_number":    {},
	"salary":            {},
	"phone":             {},
	"date_of_birth":     {},
	"address":           {},
	"emergency_contact": {},
}

// EncryptRecord encrypts, in place, every string value of record whose key is
// in SensitiveFields. Other keys and non-string values pass through
// untouched.
func (c *FieldCipher) EncryptRecord(record map[string]any) error {
	for key, value := range record {
		if _, sensitive := SensitiveFields[key]; !sensitive {
			continue
		}
		s, isString := value.(string)
		if !isString || s == "" {
			continue
		}
		enc, err := c.Encrypt(s)
		if err != nil {
			return fmt.Errorf("encrypt field %q: %w", key, err)
		}
		record[key] = enc
	}
	return nil
}

// DecryptRecord is the inverse pass of EncryptRecord. Decryption failures
// propagate; a tampered field must never be returned as if it were valid.
func (c *FieldCipher) DecryptRecord(record map[string]any) error {
	for key, value := range record {
		if _, sensitive := SensitiveFields[key]; !sensitive {
			continue
		}
		s, isString := value.(string)
		if !isString || s == "" {
			continue
		}
		dec, err := c.Decrypt(s)
		if err != nil {
			return fmt.Errorf("decrypt field %q: %w", key, err)
		}
		record[key] = dec
	}
	return nil
}

// CipherHealth reports the outcome of a round-trip probe.
type CipherHealth struct {
	CanEncrypt bool   `json:"can_encrypt"`
	CanDecrypt bool   `json:"can_decrypt"`
	KeyStatus  string `json:"key_status"`
}

// HealthCheck round-trips a known probe value through the cipher.
func (c *FieldCipher) HealthCheck() CipherHealth {
	const probe = "authcore-health-probe"

	health := CipherHealth{KeyStatus: "ok"}

	enc, err := c.Encrypt(probe)
	if err != nil {
		health.KeyStatus = "encrypt failed"
		return health
	}
	health.CanEncrypt = true

	dec, err := c.Decrypt(enc)
	if err != nil || dec != probe {
		health.KeyStatus = "decrypt failed"
		return health
	}
	health.CanDecrypt = true
	return health
}
