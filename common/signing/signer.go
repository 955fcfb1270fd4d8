// Package signing implements the shared-secret request signature scheme
// used between devices and the gate service.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks HMAC-SHA256 request signatures. The signed
// message is "<device_id>:<timestamp>" and signatures are hex encoded.
type Signer struct {
	secretKey []byte
}

func New(secretKey string) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the hex-encoded signature for a device/timestamp pair.
// Timestamp is the decimal unix-seconds string exactly as sent on the wire.
func (s *Signer) Sign(deviceID, timestamp string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(deviceID + ":" + timestamp))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches the expected value. The
// comparison is constant time.
func (s *Signer) Verify(deviceID, timestamp, signature string) bool {
	expected := s.Sign(deviceID, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
