package sysinfo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCollectsAllFamilies(t *testing.T) {
	c := NewCollector(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)

	assert.False(t, snap.Timestamp.IsZero())
	assert.NotEmpty(t, snap.Host.Hostname)
	assert.Greater(t, snap.CPU.Cores, 0)
	assert.Greater(t, snap.Memory.TotalBytes, uint64(0))
	assert.Greater(t, snap.Processes, 0)
	assert.LessOrEqual(t, len(snap.TopByCPU), 5)
	assert.LessOrEqual(t, len(snap.TopByMem), 5)
}

func TestTopByBoundsAndOrders(t *testing.T) {
	stats := []ProcStats{
		{PID: 1, CPUPercent: 5},
		{PID: 2, CPUPercent: 80},
		{PID: 3, CPUPercent: 20},
	}

	top := topBy(stats, 2, func(a, b ProcStats) bool { return a.CPUPercent > b.CPUPercent })
	require.Len(t, top, 2)
	assert.Equal(t, int32(2), top[0].PID)
	assert.Equal(t, int32(3), top[1].PID)

	// The input order is untouched.
	assert.Equal(t, int32(1), stats[0].PID)
}
