package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("join_lobby", "ok", 3*time.Millisecond)
	m.Observe("join_lobby", "lobby_full", time.Millisecond)
	m.Observe("join_lobby", "lobby_full", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("join_lobby", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("join_lobby", "lobby_full")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	count, err := testutil.GatherAndCount(reg, "lobby_operations_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
