package strcase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToLowerSnake(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"Code":         "code",
		"SessionID":    "session_id",
		"HTTPStatus":   "http_status",
		"ExpiresIn":    "expires_in",
		"Attempt2Code": "attempt2_code",
		"ID":           "id",
	}

	for in, want := range tests {
		assert.Equal(t, want, ToLowerSnake(in), in)
	}
}
