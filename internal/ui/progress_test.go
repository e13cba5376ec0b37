// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWaitSpinner_NilWhenNoColor(t *testing.T) {
	assert.Nil(t, NewWaitSpinner(true, "waiting"))
}

func TestTickAndFinishSpinner_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		TickSpinner(nil)
		FinishSpinner(nil)
	})
}
