// Package cache holds the response cache keyed by request payload fingerprint.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeKey fingerprints a request payload. The image wins over the question
// when both are present; ok is false when neither is.
func ComputeKey(imageBase64, questionText string) (key string, ok bool) {
	switch {
	case imageBase64 != "":
		return hashHex(imageBase64), true
	case questionText != "":
		return hashHex(questionText), true
	default:
		return "", false
	}
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
