package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ops.team@acme.com", "op***@acme.com"},
		{"ab@acme.com", "***@acme.com"},
		{" growth@acme.com ", "gr***@acme.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
		{"user@", "***@***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RedactEmail(tt.in), tt.in)
	}
}

func TestRedactEmails(t *testing.T) {
	assert.Equal(t, []string{"al***@acme.com", "***@acme.com"}, RedactEmails([]string{"alerts@acme.com", "me@acme.com"}))
	assert.Empty(t, RedactEmails(nil))
}
