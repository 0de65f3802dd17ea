// Package signature signs and verifies message bodies exchanged with the
// payment processor using HMAC-SHA256 over the exact body bytes.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 digest of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest of body and compares it with candidate in
// constant time. Only the exact lowercase hex form produced by Sign is
// accepted; any other spelling of the digest fails.
func Verify(secret, body []byte, candidate string) bool {
	if !isLowerHexDigest(candidate) {
		return false
	}
	got, err := hex.DecodeString(candidate)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

func isLowerHexDigest(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
