package moments

import "io"

// Encryptor protects queued originals at rest on the device.
// The sync worker runs unattended, so decryption needs no passphrase; the
// identity file is protected by file permissions instead.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `moments config init`.
	Setup() error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error

	// IsConfigured returns true if the keys Setup creates are present.
	IsConfigured() bool
}
