package hostsensor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/omnistatus/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "hostsensor-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(newTestStore(t), Config{})
	assert.Equal(t, defaultCPUThreshold, s.Config.CPUThreshold)
	assert.Equal(t, defaultMemoryThreshold, s.Config.MemoryThreshold)
	assert.Equal(t, defaultProcessThreshold, s.Config.ProcessThreshold)

	s = New(newTestStore(t), Config{CPUThreshold: 50})
	assert.Equal(t, 50.0, s.Config.CPUThreshold)
	assert.Equal(t, defaultMemoryThreshold, s.Config.MemoryThreshold)
}

func TestName(t *testing.T) {
	s := New(newTestStore(t), Config{})
	assert.Equal(t, "host_sensor", s.Name())
}

func TestEmitStoresScoredEvent(t *testing.T) {
	st := newTestStore(t)
	s := New(st, Config{})

	s.emit(context.Background(), "High CPU usage: 95.0%", 0.95)

	evts, err := st.Find(context.Background(), store.TableEvents, store.Filter{})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "host_sensor", evts[0].Source)
	assert.Equal(t, "High CPU usage: 95.0%", evts[0].DisplayText())
	require.NotNil(t, evts[0].ScoreValue())
	assert.Equal(t, 0.95, *evts[0].ScoreValue())
}

func TestRunNeverPanics(t *testing.T) {
	// Telemetry readings depend on the host; the sweep itself must always
	// complete regardless of what it finds.
	s := New(newTestStore(t), Config{CPUThreshold: 101, MemoryThreshold: 101, ProcessThreshold: 101})
	assert.NotPanics(t, func() { s.Run(context.Background()) })
}
