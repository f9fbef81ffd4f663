// Package auth verifies signed remote commands. A request carries a nonce
// and an HMAC-SHA256 signature of it; validity is a pure function of the
// shared secret and the nonce content. Replay protection is deliberately
// not provided here: the guarantee is "the signature matches the secret",
// and a freshness window belongs in front of Verify if a caller wants one.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Sign computes the HMAC-SHA256 of nonce with the base64-encoded shared
// secret and returns the signature hex encoded. Used by tests and by the
// companion signing utility.
func Sign(base64Secret, nonce string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return "", fmt.Errorf("invalid base64 secret: %w", err)
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature is a valid HMAC-SHA256 of nonce under
// the shared secret. The signature may be hex or base64 encoded; the
// comparison is constant time. Missing fields, a malformed secret, or a
// signature in neither encoding all verify as false.
func Verify(base64Secret, nonce, signature string) bool {
	if nonce == "" || signature == "" {
		return false
	}

	secret, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil || len(secret) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(nonce))
	expected := mac.Sum(nil)

	if decoded, err := hex.DecodeString(signature); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil {
		if subtle.ConstantTimeCompare(decoded, expected) == 1 {
			return true
		}
	}

	return false
}
