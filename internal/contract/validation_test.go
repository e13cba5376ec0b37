// Copyright 2026 the analyzer authors
// SPDX-License-Identifier: Apache-2.0

package contract

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePath_RejectsEmpty(t *testing.T) {
	res := ValidatePath("")
	assert.False(t, res.OK)
}

func TestValidatePath_RejectsOversized(t *testing.T) {
	res := ValidatePath(strings.Repeat("a", MaxPathBytes+1))
	assert.False(t, res.OK)
}

func TestValidatePath_AcceptsOrdinaryPath(t *testing.T) {
	res := ValidatePath(`C:\temp\drop.bin`)
	assert.True(t, res.OK)
}

func TestMaxMessageBytes_DefaultsWithoutEnv(t *testing.T) {
	os.Unsetenv("ANALYZER_MAX_MESSAGE_BYTES")
	assert.Equal(t, DefaultMaxMessageBytes, MaxMessageBytes())
}

func TestMaxMessageBytes_HonorsEnvOverride(t *testing.T) {
	t.Setenv("ANALYZER_MAX_MESSAGE_BYTES", "1024")
	assert.Equal(t, 1024, MaxMessageBytes())
}

func TestMaxMessageBytes_IgnoresInvalidEnv(t *testing.T) {
	t.Setenv("ANALYZER_MAX_MESSAGE_BYTES", "not-a-number")
	assert.Equal(t, DefaultMaxMessageBytes, MaxMessageBytes())
}
