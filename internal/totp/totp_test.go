package totp

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// base32 of the ASCII seed "12345678901234567890" used by both RFCs
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestHOTPRFC4226Vectors(t *testing.T) {
	key := []byte("12345678901234567890")
	want := []string{"755224", "287082", "359152", "969429", "338314", "254676", "287922", "162583", "399871", "520489"}
	for counter, code := range want {
		assert.Equal(t, code, hotp(key, uint64(counter), 6), "counter %d", counter)
	}
}

func TestTOTPRFC6238Vectors(t *testing.T) {
	key := []byte("12345678901234567890")
	cases := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}
	for _, tc := range cases {
		got := hotp(key, uint64(counterAt(time.Unix(tc.unix, 0))), 8)
		assert.Equal(t, tc.code, got, "unix %d", tc.unix)
	}
}

func TestCodeUsesSixDigits(t *testing.T) {
	code, err := Code(rfcSecret, time.Unix(1234567890, 0))
	require.NoError(t, err)
	assert.Equal(t, "005924", code)
}

func TestValidateWindow(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	issued := time.Unix(1_700_000_015, 0)
	code, err := Code(secret, issued)
	require.NoError(t, err)

	assert.True(t, Validate(secret, code, issued))
	assert.True(t, Validate(secret, code, issued.Add(29*time.Second)))
	assert.True(t, Validate(secret, code, issued.Add(-29*time.Second)))
	assert.False(t, Validate(secret, code, issued.Add(61*time.Second)))
	assert.False(t, Validate(secret, code, issued.Add(-61*time.Second)))
}

func TestValidateRejectsMalformedInput(t *testing.T) {
	now := time.Unix(1234567890, 0)
	code, err := Code(rfcSecret, now)
	require.NoError(t, err)

	assert.True(t, Validate(strings.ToLower(rfcSecret), " "+code+" ", now))
	assert.False(t, Validate(rfcSecret, "12345", now))
	assert.False(t, Validate(rfcSecret, "12a456", now))
	assert.False(t, Validate("not base32!", code, now))
	assert.False(t, Validate("", code, now))
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
	key, err := decodeSecret(a)
	require.NoError(t, err)
	assert.Len(t, key, secretBytes)
}

func TestProvisioningURI(t *testing.T) {
	uri := ProvisioningURI("hands_on", "ann@x.com", rfcSecret)
	require.Equal(t, "otpauth://totp/hands_on:ann@x.com?secret="+rfcSecret+"&issuer=hands_on", uri)

	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "totp", parsed.Host)
	assert.Equal(t, rfcSecret, parsed.Query().Get("secret"))
	assert.Equal(t, "hands_on", parsed.Query().Get("issuer"))
}

func TestClockFunc(t *testing.T) {
	fixed := time.Unix(42, 0)
	var c Clock = ClockFunc(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
	assert.False(t, SystemClock{}.Now().IsZero())
}
