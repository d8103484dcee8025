package auth

import (
	"testing"
)

func TestGenerateSecretHash(t *testing.T) {
	hash, err := GenerateSecretHash()
	if err != nil {
		t.Fatalf("GenerateSecretHash() error = %v", err)
	}

	if len(hash) != SecretHashLength {
		t.Errorf("hash length = %d, want %d", len(hash), SecretHashLength)
	}

	if err := ValidateSecretHash(hash); err != nil {
		t.Errorf("ValidateSecretHash() on generated hash error = %v", err)
	}
}

func TestGenerateSecretHash_Uniqueness(t *testing.T) {
	hashes := make(map[string]bool)

	for i := 0; i < 100; i++ {
		hash, err := GenerateSecretHash()
		if err != nil {
			t.Fatalf("GenerateSecretHash() error = %v", err)
		}
		if hashes[hash] {
			t.Errorf("Duplicate hash generated: %s", hash)
		}
		hashes[hash] = true
	}
}

func TestValidateSecretHash(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		wantErr bool
	}{
		{name: "valid", hash: "0123456789abcdef0123456789abcdef01234567", wantErr: false},
		{name: "too short", hash: "abc", wantErr: true},
		{name: "uppercase", hash: "0123456789ABCDEF0123456789abcdef01234567", wantErr: true},
		{name: "non hex", hash: "0123456789abcdef0123456789abcdef0123456z", wantErr: true},
		{name: "empty", hash: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecretHash(tt.hash)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecretHash() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
