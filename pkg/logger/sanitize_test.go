package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcd", "****"},
		{"secret-key", "s********y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskSecret(tt.in))
	}
}

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ops@example.com", "o**@*******.com"},
		{"a@b.io", "a@*.io"},
		{"not-an-email", "[invalid-email]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizedEmail(tt.in))
	}
}

func TestRedactedAttr(t *testing.T) {
	attr := RedactedAttr("api_key", "k****y", "production")
	assert.Equal(t, "[REDACTED]", attr.Value.String())

	attr = RedactedAttr("api_key", "k****y", "development")
	assert.Equal(t, "k****y", attr.Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.True(t, SanitizeQueryString("MFA=1"))
	assert.False(t, SanitizeQueryString("page=2&sort=cpu"))
}
