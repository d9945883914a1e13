package encryption

import (
	"bytes"
	"testing"

	"moments/internal/config"
)

func TestTestEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := NewTestEncryptor()

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !bytes.HasPrefix(encrypted.Bytes(), testHeader) {
				t.Error("encrypted output does not start with test header")
			}

			var decrypted bytes.Buffer
			if err := e.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted.Bytes(), tt.input)
			}
		})
	}
}

func TestTestEncryptor_InvalidHeader(t *testing.T) {
	t.Parallel()

	e := NewTestEncryptor()
	var out bytes.Buffer
	if err := e.Decrypt(bytes.NewReader([]byte("NOT_VALID_HEADER_data")), &out); err == nil {
		t.Error("Decrypt() with invalid header should return error")
	}
	if err := e.Decrypt(bytes.NewReader([]byte("MO")), &out); err == nil {
		t.Error("Decrypt() with truncated data should return error")
	}
}

func TestNopEncryptor(t *testing.T) {
	t.Parallel()

	var enc, dec bytes.Buffer
	if err := (NopEncryptor{}).Encrypt(bytes.NewReader([]byte("plain")), &enc); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if enc.String() != "plain" {
		t.Errorf("Encrypt() = %q, want passthrough", enc.String())
	}
	if err := (NopEncryptor{}).Decrypt(&enc, &dec); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if dec.String() != "plain" {
		t.Errorf("Decrypt() = %q, want passthrough", dec.String())
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{name: "age", typ: "age"},
		{name: "default is age", typ: ""},
		{name: "test", typ: "test"},
		{name: "none", typ: "none"},
		{name: "unknown", typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewEncryptorFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
