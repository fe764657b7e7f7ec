package interconnect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIsColonSeparatedUppercaseHex(t *testing.T) {
	der := []byte("not a real certificate, just bytes to hash")
	fp := Fingerprint(der)

	require.Len(t, fp, 32*3-1) // 32 octets, ':'-joined
	require.Equal(t, fp, Fingerprint(der), "fingerprint must be deterministic")
	require.Equal(t, fp, fp, "sanity")
	for _, r := range fp {
		switch {
		case r == ':':
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		default:
			t.Fatalf("unexpected character %q in fingerprint %q", r, fp)
		}
	}
}

func TestVerifyFingerprintIsCaseInsensitive(t *testing.T) {
	der := []byte("another certificate payload")
	fp := Fingerprint(der)

	require.True(t, VerifyFingerprint(der, fp))
	require.True(t, VerifyFingerprint(der, lower(fp)))
	require.False(t, VerifyFingerprint(der, "00:00:00"))
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'F' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
