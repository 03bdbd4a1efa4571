package envoverlay_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/G14MB0/conductor/internal/envoverlay"
)

func TestApplyRestoresPreviousValue(t *testing.T) {
	os.Setenv("CONDUCTOR_TEST_VAR", "before")
	defer os.Unsetenv("CONDUCTOR_TEST_VAR")

	envoverlay.Apply(map[string]string{"CONDUCTOR_TEST_VAR": "during"}, func() {
		assert.Equal(t, "during", os.Getenv("CONDUCTOR_TEST_VAR"))
	})

	assert.Equal(t, "before", os.Getenv("CONDUCTOR_TEST_VAR"))
}

func TestApplyUnsetsPreviouslyAbsentKey(t *testing.T) {
	os.Unsetenv("CONDUCTOR_TEST_ABSENT")

	envoverlay.Apply(map[string]string{"CONDUCTOR_TEST_ABSENT": "x"}, func() {
		assert.Equal(t, "x", os.Getenv("CONDUCTOR_TEST_ABSENT"))
	})

	_, ok := os.LookupEnv("CONDUCTOR_TEST_ABSENT")
	assert.False(t, ok)
}
