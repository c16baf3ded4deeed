package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	// Accept codes up to two time steps either side of now, tolerating
	// authenticator clock drift.
	totpSkew = 2

	backupCodeLen = 10
)

// Backup codes are drawn from an alphabet without 0/O/1/I so users can read
// them back without ambiguity.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTOTPSecret generates a random 160-bit secret encoded as unpadded
// Base32 (the encoding authenticator apps expect).
func GenerateTOTPSecret() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// ProvisioningURI builds the otpauth:// URI for the given secret, consumable
// by any authenticator app. The QR code shown during setup is a rendering of
// this URI, not separate data.
func ProvisioningURI(issuer, account, secret string) (string, error) {
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("provisioning uri: bad secret: %w", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Secret:      raw,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// VerifyTOTP reports whether code is valid for secret at the given instant,
// within the configured skew window.
func VerifyTOTP(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// MatchTOTPStep finds the exact time step code verifies at, walking the skew
// window one step at a time. Recording the matched step lets the MFA service
// reject a second code from the same or an earlier step (replay).
func MatchTOTPStep(code, secret string, at time.Time) (int64, bool) {
	for delta := int64(-totpSkew); delta <= totpSkew; delta++ {
		stepTime := at.Add(time.Duration(delta*totpPeriod) * time.Second)
		ok, err := totp.ValidateCustom(code, secret, stepTime, totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err == nil && ok {
			return TimeStep(stepTime), true
		}
	}
	return 0, false
}

// TimeStep returns the TOTP step counter for the given instant. The MFA
// service persists the step of the last accepted code and rejects a second
// code from the same step, closing the replay window.
func TimeStep(at time.Time) int64 {
	return at.Unix() / totpPeriod
}

// GenerateBackupCodes returns n fresh single-use recovery codes, formatted
// XXXXX-XXXXX. Plaintext codes are shown to the user exactly once; only
// their hashes are persisted.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, backupCodeLen)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		chars := make([]byte, backupCodeLen)
		for j, b := range buf {
			chars[j] = backupCodeAlphabet[int(b)%len(backupCodeAlphabet)]
		}
		codes = append(codes, fmt.Sprintf("%s-%s", chars[:5], chars[5:]))
	}
	return codes, nil
}
