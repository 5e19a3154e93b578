package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/supercurriculum-admin/internal/models"
	"github.com/noah-isme/supercurriculum-admin/internal/querycache"
)

type probeStub struct {
	diskErr error
}

func (p probeStub) CPU(ctx context.Context, window time.Duration) (float64, int, error) {
	return 12.5, 4, nil
}

func (p probeStub) Memory(ctx context.Context) (uint64, uint64, float64, error) {
	return 8 << 30, 2 << 30, 75, nil
}

func (p probeStub) Disk(ctx context.Context, path string) (uint64, uint64, float64, error) {
	if p.diskErr != nil {
		return 0, 0, 0, p.diskErr
	}
	return 100 << 30, 40 << 30, 60, nil
}

func TestMonitorServiceSnapshot(t *testing.T) {
	cache := querycache.New(querycache.Options{})
	cache.Set(querycache.ListKey(models.ResourceSubjects, nil), 1)
	svc := NewMonitorService(newAPIStub(), cache, probeStub{}, MonitorConfig{DiskPath: "/data"}, nil)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.5, snap.Host.CPUPercent)
	assert.Equal(t, 4, snap.Host.CPUCount)
	assert.Equal(t, uint64(2<<30), snap.Host.MemoryAvailable)
	assert.Equal(t, "/data", snap.Host.DiskPath)
	assert.Equal(t, float64(60), snap.Host.DiskPercent)
	assert.True(t, snap.Upstream.Reachable)
	assert.Equal(t, 1, snap.Cache.Entries)
	assert.Empty(t, snap.Warnings)
	assert.False(t, snap.ObservedAt.IsZero())
}

func TestMonitorServiceProbeFailureIsAWarning(t *testing.T) {
	svc := NewMonitorService(newAPIStub(), nil, probeStub{diskErr: errors.New("no such mount")}, MonitorConfig{}, nil)

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"disk: no such mount"}, snap.Warnings)
	assert.Zero(t, snap.Host.DiskTotal)
	assert.Equal(t, 4, snap.Host.CPUCount)
}
