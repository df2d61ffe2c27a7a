package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenv(t *testing.T) {
	t.Run("String set", func(t *testing.T) {
		t.Setenv("VOICELINK_TEST_HOST", "api.example.com")
		v, err := Getenv(GetenvString, "VOICELINK_TEST_HOST", true, "")
		require.NoError(t, err)
		assert.Equal(t, "api.example.com", v)
	})

	t.Run("Fallback when unset", func(t *testing.T) {
		v, err := Getenv(GetenvInt, "VOICELINK_TEST_UNSET", false, 16000)
		require.NoError(t, err)
		assert.Equal(t, 16000, v)
	})

	t.Run("Required but unset", func(t *testing.T) {
		_, err := Getenv(GetenvString, "VOICELINK_TEST_UNSET", true, "")
		assert.Error(t, err)
	})

	t.Run("Bad integer", func(t *testing.T) {
		t.Setenv("VOICELINK_TEST_RATE", "not-a-number")
		_, err := Getenv(GetenvInt, "VOICELINK_TEST_RATE", true, 0)
		assert.Error(t, err)
	})

	t.Run("Bool parsing", func(t *testing.T) {
		t.Setenv("VOICELINK_TEST_VERBOSE", "true")
		v, err := Getenv(GetenvBool, "VOICELINK_TEST_VERBOSE", false, false)
		require.NoError(t, err)
		assert.True(t, v)
	})
}

func TestMustGetenv(t *testing.T) {
	t.Run("Panics when required and unset", func(t *testing.T) {
		assert.Panics(t, func() {
			MustGetenv(GetenvString, "VOICELINK_TEST_UNSET", true, "")
		})
	})

	t.Run("Returns fallback", func(t *testing.T) {
		v := MustGetenv(GetenvString, "VOICELINK_TEST_UNSET", false, "fallback")
		assert.Equal(t, "fallback", v)
	})
}
