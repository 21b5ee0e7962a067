package mfa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func cleanSecret(secret string) string {
	return strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
}

// GenerateTOTP returns the passcode for secret at t.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("totp secret cannot be empty")
	}
	passcode, err := totp.GenerateCodeCustom(cleanSecret(secret), t.UTC(), totpOpts)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return passcode, nil
}

func ValidateTOTP(passcode, secret string, t time.Time) (bool, error) {
	if secret == "" {
		return false, fmt.Errorf("totp secret cannot be empty")
	}
	if passcode == "" {
		return false, fmt.Errorf("passcode cannot be empty")
	}
	valid, err := totp.ValidateCustom(passcode, cleanSecret(secret), t.UTC(), totpOpts)
	if err != nil {
		return false, fmt.Errorf("failed to validate totp code: %w", err)
	}
	return valid, nil
}

// TOTP generates codes from a shared secret instead of the desktop app, for
// accounts enrolled with an authenticator seed.
type TOTP struct {
	Secret string
	Now    func() time.Time
}

func (p *TOTP) Name() string { return ProviderTOTP }

func (p *TOTP) Code(_ context.Context) (string, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return GenerateTOTP(p.Secret, now())
}
