package netman

import (
	"crypto/rand"
	"log"
	"math/big"
)

// MinimumSecretLength is the shortest usable access point secret (WPA2
// refuses anything shorter).
const MinimumSecretLength = 8

// Visually unambiguous characters only: no O/0, I/1, l confusion. The
// secret gets read off a log line or a label and typed into a phone.
const secretAlphabet = "abcdefghjkmnopqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789.-,:$/"

// GenerateRandomSecret produces a fresh secret of max(length,
// MinimumSecretLength) characters from a cryptographic random source.
// This secret gates the device's setup interface, so a predictable
// sequence is not acceptable.
func GenerateRandomSecret(length int) string {
	if length < MinimumSecretLength {
		length = MinimumSecretLength
	}

	alphabetSize := big.NewInt(int64(len(secretAlphabet)))
	secret := make([]byte, length)
	for i := range secret {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			// crypto/rand only fails when the platform entropy
			// source is broken; nothing sensible to fall back to.
			log.Panicf("random source unavailable: %v", err)
		}
		secret[i] = secretAlphabet[n.Int64()]
	}

	return string(secret)
}
