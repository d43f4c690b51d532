package netman

import (
	"strings"
	"testing"
)

func TestGenerateRandomSecretLength(t *testing.T) {
	tests := []struct {
		name    string
		request int
		want    int
	}{
		{"below minimum is padded", 4, 8},
		{"zero is padded", 0, 8},
		{"negative is padded", -3, 8},
		{"exactly minimum", 8, 8},
		{"longer than minimum", 20, 20},
		{"much longer", 63, 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := GenerateRandomSecret(tt.request)
			if len(secret) != tt.want {
				t.Errorf("len = %d, want %d", len(secret), tt.want)
			}
		})
	}
}

func TestGenerateRandomSecretAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		secret := GenerateRandomSecret(32)
		if strings.ContainsRune(secret, 'O') {
			t.Fatalf("secret %q contains the letter O", secret)
		}
		for _, r := range secret {
			if !strings.ContainsRune(secretAlphabet, r) {
				t.Fatalf("secret %q contains %q, not in the alphabet", secret, r)
			}
		}
	}
}

func TestGenerateRandomSecretIsNotRepeatable(t *testing.T) {
	// Two 16-character draws colliding means the random source is
	// broken, not that we got unlucky.
	if GenerateRandomSecret(16) == GenerateRandomSecret(16) {
		t.Fatal("two consecutive secrets are identical")
	}
}
