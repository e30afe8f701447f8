package utils

import "crypto/rand"

// GenerateRandomKey returns 32 random bytes suitable as an HMAC key.
func GenerateRandomKey() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return b
}
