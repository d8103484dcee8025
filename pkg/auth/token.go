package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// SecretHashBytes is the number of random bytes behind an invitation hash
	SecretHashBytes = 20
	// SecretHashLength is the length of the hex encoded hash
	SecretHashLength = SecretHashBytes * 2
)

// GenerateSecretHash returns an unguessable 40 character hex token used to
// look up invitations
func GenerateSecretHash() (string, error) {
	randomBytes := make([]byte, SecretHashBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// ValidateSecretHash checks that a hash has the format produced by GenerateSecretHash
func ValidateSecretHash(hash string) error {
	if len(hash) != SecretHashLength {
		return fmt.Errorf("hash must be %d characters, got %d", SecretHashLength, len(hash))
	}
	for _, r := range hash {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("hash must be lowercase hex")
		}
	}
	return nil
}
