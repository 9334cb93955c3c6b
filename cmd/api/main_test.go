package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litebrick/consult-bookings/pkg/config"
)

func TestRun_InvalidConfigurationReturnsError(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")

	err := run(config.Load())
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid configuration")
	assert.ErrorContains(t, err, "ENCRYPTION_KEY")
}
