package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"AMOUNT":     "49900",
		"BAD_AMOUNT": "49.9",
		"FLAG":       "true",
		"BAD_FLAG":   "maybe",
	}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, int64(49900), GetEnvInt64("AMOUNT", 1))
	assert.Equal(t, int64(1), GetEnvInt64("BAD_AMOUNT", 1))
	assert.Equal(t, int64(7), GetEnvInt64("MISSING_AMOUNT", 7))

	assert.True(t, GetEnvBool("FLAG", false))
	assert.True(t, GetEnvBool("BAD_FLAG", true))
	assert.False(t, GetEnvBool("MISSING_FLAG", false))
}

func TestGetEnvFallsBackToOS(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("CALCFOX_TEST_KEY", "from-os")

	assert.Equal(t, "from-os", GetEnv("CALCFOX_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("CALCFOX_TEST_MISSING", "def"))
}
