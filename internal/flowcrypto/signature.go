package flowcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme prefix on the X-Hub-Signature-256 header.
const SignaturePrefix = "sha256="

// SignPayload computes the hex HMAC-SHA256 of body under secret, with the
// header prefix, as Meta sends it.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks an X-Hub-Signature-256 header against body.
// Comparison is constant time. An empty or unprefixed header fails.
func ValidateSignature(secret string, body []byte, header string) bool {
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, SignaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
