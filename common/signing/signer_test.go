package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	s := New("fhX7tG9yZN2w8kL5vQ3pP6mD1rJ4sA0u")

	sig := s.Sign("rpi-abc", "1700000000")
	require.Len(t, sig, 64, "hex-encoded SHA-256 output")
	assert.True(t, s.Verify("rpi-abc", "1700000000", sig))
}

func TestVerifyRejectsMutatedSignature(t *testing.T) {
	s := New("test-key")
	sig := s.Sign("device-1", "1645000000")

	// Flip a single hex digit at every position.
	for i := range sig {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		assert.False(t, s.Verify("device-1", "1645000000", string(mutated)),
			"mutation at position %d must fail verification", i)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	a := New("key-a")
	b := New("key-b")

	sig := a.Sign("device-1", "1645000000")
	assert.False(t, b.Verify("device-1", "1645000000", sig))
}

func TestSignBindsDeviceAndTimestamp(t *testing.T) {
	s := New("test-key")

	sig := s.Sign("device-1", "1645000000")
	assert.False(t, s.Verify("device-2", "1645000000", sig))
	assert.False(t, s.Verify("device-1", "1645000001", sig))

	// The separator prevents ambiguity between id and timestamp bytes.
	assert.NotEqual(t, s.Sign("device-1:1", "645000000"), s.Sign("device-1", "1645000000"))
}
