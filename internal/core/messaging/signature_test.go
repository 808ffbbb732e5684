package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"entry": []}`)

	assert.True(t, VerifySignature(secret, body, sign(secret, body)))
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"entry": []}`)

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
	}{
		{"wrong secret", secret, body, sign("other-secret", body)},
		{"tampered body", secret, []byte(`{"entry": [1]}`), sign(secret, body)},
		{"missing prefix", secret, body, hex.EncodeToString([]byte("raw"))},
		{"empty header", secret, body, ""},
		{"empty secret", "", body, sign(secret, body)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifySignature(tt.secret, tt.body, tt.header))
		})
	}
}
