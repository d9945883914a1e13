package testutil

import (
	"moments/internal/encryption"
	"moments/internal/moments"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() moments.Encryptor {
	return encryption.NewTestEncryptor()
}
