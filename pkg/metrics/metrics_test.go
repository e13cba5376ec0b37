// Copyright 2026 the analyzer authors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_SnapshotReflectsUpdates(t *testing.T) {
	m := New()

	m.TrackedPIDs.Set(3)
	m.FilesDumped.Add(2)
	m.UploadFailures.Inc()
	m.InjectionAttempted.Inc()
	m.InjectionSkipped.Add(4)
	m.InjectionFailed.Inc()
	m.CommandsReceived.WithLabelValues("PROCESS").Inc()

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.TrackedPIDs)
	assert.Equal(t, 2, snap.FilesDumped)
	assert.Equal(t, 1, snap.UploadFailures)
	assert.Equal(t, 1, snap.InjectionAttempted)
	assert.Equal(t, 4, snap.InjectionSkipped)
	assert.Equal(t, 1, snap.InjectionFailed)
}

func TestRegistry_MultipleInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()

	a.FilesDumped.Inc()
	assert.Equal(t, 1, a.Snapshot().FilesDumped)
	assert.Equal(t, 0, b.Snapshot().FilesDumped)
}

func TestRegistry_GathererExposesMetrics(t *testing.T) {
	m := New()
	m.FilesDumped.Inc()

	families, err := m.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
