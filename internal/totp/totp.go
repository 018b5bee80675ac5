// Package totp implements RFC 6238 time-based one-time passwords on top of
// RFC 4226 HOTP, with the parameters standard authenticator apps expect:
// HMAC-SHA1, 30 second steps and 6 digits.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// Period is the length of one time step in seconds.
	Period = 30
	// Digits is the length of a generated code.
	Digits = 6
	// Skew is how many steps either side of the current one are accepted.
	Skew = 1

	secretBytes = 20
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// GenerateSecret returns 160 random bits encoded as unpadded base32.
func GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return encoding.EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URL that authenticator apps import
// from a QR code.
func ProvisioningURI(issuer, account, secret string) string {
	label := url.PathEscape(issuer) + ":" + url.PathEscape(account)
	// secret first, then issuer
	query := "secret=" + url.QueryEscape(secret) + "&issuer=" + url.QueryEscape(issuer)

	return "otpauth://totp/" + label + "?" + query
}

// Code returns the code for the time step containing t.
func Code(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(counterAt(t)), Digits), nil
}

// Validate reports whether code matches secret in the step containing now or
// in one of the Skew steps around it. Malformed secrets or codes never match.
func Validate(secret, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits || !numeric(code) {
		return false
	}
	key, err := decodeSecret(secret)
	if err != nil || len(key) == 0 {
		return false
	}

	base := counterAt(now)
	matched := 0
	for step := int64(-Skew); step <= Skew; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		generated := hotp(key, uint64(counter), Digits)
		// every step is compared
		matched |= subtle.ConstantTimeCompare([]byte(generated), []byte(code))
	}
	return matched == 1
}

func counterAt(t time.Time) int64 {
	return t.Unix() / Period
}

func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.TrimRight(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), "=")
	key, err := encoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}

func hotp(key []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
