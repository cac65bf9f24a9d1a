package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettingString(t *testing.T) {
	s := Setting{
		"base_url": "https://api.example.com/v1",
		"retries":  3,
	}

	assert.Equal(t, "https://api.example.com/v1", s.String("base_url"))
	assert.Empty(t, s.String("retries"), "non-string values read as empty")
	assert.Empty(t, s.String("missing"))
}
