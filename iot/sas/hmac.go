package sas

import (
	"crypto/hmac"
	"crypto/sha256"
)

// DigestSize is the size of an HMAC-SHA256 digest
const DigestSize = sha256.Size

// sign computes HMAC-SHA256 of message under key into out
func sign(key, message []byte, out *[DigestSize]byte) {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	mac.Sum(out[:0])
}
