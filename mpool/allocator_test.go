package mpool_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/memutils"
	"github.com/tlsmem/mpipool/mpool"
	"github.com/tlsmem/mpipool/profile"
)

func createTestAllocator(t *testing.T, workers int) *mpool.Allocator {
	t.Helper()

	allocator, err := mpool.New(nil, mpool.CreateOptions{
		WorkerCount:  workers,
		PoolCapacity: 4096,
	})
	require.NoError(t, err)
	t.Cleanup(allocator.Destroy)

	return allocator
}

func TestAllocatorLifecycle(t *testing.T) {
	allocator := createTestAllocator(t, 4)
	require.Equal(t, 4, allocator.WorkerCount())

	var stats memutils.DetailedStatistics
	stats.Clear()
	allocator.CalculateStatistics(&stats)
	require.Equal(t, 4, stats.PoolCount)
	require.Equal(t, 4*4096, stats.PoolBytes)
	require.Equal(t, 0, stats.AllocationCount)
}

func TestAllocatorDefaults(t *testing.T) {
	allocator, err := mpool.New(nil, mpool.CreateOptions{})
	require.NoError(t, err)
	defer allocator.Destroy()

	require.Greater(t, allocator.WorkerCount(), 0)
}

func TestAllocatorRejectsBadOptions(t *testing.T) {
	_, err := mpool.New(nil, mpool.CreateOptions{WorkerCount: -1})
	require.Error(t, err)

	_, err = mpool.New(nil, mpool.CreateOptions{PoolCapacity: 1000})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
}

func TestTransientAllocResolvesToOwningWorker(t *testing.T) {
	allocator := createTestAllocator(t, 3)

	handle1, err := allocator.TransientAlloc(1, 128)
	require.NoError(t, err)
	require.Equal(t, arena.KindTransient, handle1.Kind)
	require.Equal(t, 1, handle1.Owner)
	require.Equal(t, 0, handle1.Offset)

	handle2, err := allocator.TransientAlloc(2, 64)
	require.NoError(t, err)
	require.Equal(t, 2, handle2.Owner)
	require.Equal(t, 0, handle2.Offset)

	pool1, err := allocator.ResolvePool(handle1)
	require.NoError(t, err)
	pool2, err := allocator.ResolvePool(handle2)
	require.NoError(t, err)
	require.NotSame(t, pool1, pool2)
	require.Equal(t, 128, pool1.Offset())
	require.Equal(t, 64, pool2.Offset())
}

func TestPersistentHandleResolvesToProfilePool(t *testing.T) {
	allocator := createTestAllocator(t, 2)
	require.NoError(t, allocator.EnsureProfile(profile.SchemeECDHESecp256, nil))

	prof, err := allocator.Registry().Profile(profile.SchemeECDHESecp256)
	require.NoError(t, err)

	handle := arena.Handle{
		Kind:  arena.KindPersistent,
		Owner: int(profile.SchemeECDHESecp256),
		Size:  64,
	}

	// Resolution ignores which worker is active- the profile pool comes back
	// from the registry either way
	pool, err := allocator.ResolvePool(handle)
	require.NoError(t, err)
	require.Same(t, prof.Pool(), pool)

	region, err := allocator.Bytes(handle)
	require.NoError(t, err)
	require.Len(t, region, 64)
}

func TestResolvePoolInconsistency(t *testing.T) {
	allocator := createTestAllocator(t, 2)

	_, err := allocator.ResolvePool(arena.Handle{Kind: arena.KindTransient, Owner: 7})
	require.ErrorIs(t, err, memutils.ErrInternalInconsistency)

	_, err = allocator.ResolvePool(arena.Handle{
		Kind:  arena.KindPersistent,
		Owner: int(profile.SchemeECDHESecp521),
	})
	require.ErrorIs(t, err, memutils.ErrInternalInconsistency)

	_, err = allocator.ResolvePool(arena.Handle{})
	require.ErrorIs(t, err, memutils.ErrInternalInconsistency)
}

func TestResetTransientErasesAndRewinds(t *testing.T) {
	allocator := createTestAllocator(t, 2)

	handle, err := allocator.TransientAlloc(0, 256)
	require.NoError(t, err)

	region, err := allocator.Bytes(handle)
	require.NoError(t, err)
	for i := range region {
		region[i] = 0x5A
	}

	require.NoError(t, allocator.ResetTransient(0))
	require.True(t, memutils.IsZeroed(region))

	again, err := allocator.TransientAlloc(0, 256)
	require.NoError(t, err)
	require.Equal(t, handle.Offset, again.Offset)

	require.ErrorIs(t, allocator.ResetTransient(9), memutils.ErrInternalInconsistency)
}

func TestTransientAllocOutOfPool(t *testing.T) {
	allocator := createTestAllocator(t, 1)

	_, err := allocator.TransientAlloc(0, 4096)
	require.NoError(t, err)

	_, err = allocator.TransientAlloc(0, 1)
	require.ErrorIs(t, err, memutils.ErrOutOfPool)
}

func TestDestroyErasesTransientPools(t *testing.T) {
	allocator, err := mpool.New(nil, mpool.CreateOptions{WorkerCount: 1, PoolCapacity: 1024})
	require.NoError(t, err)

	handle, err := allocator.TransientAlloc(0, 100)
	require.NoError(t, err)
	region, err := allocator.Bytes(handle)
	require.NoError(t, err)
	for i := range region {
		region[i] = 0xEE
	}

	allocator.Destroy()
	require.True(t, memutils.IsZeroed(region))

	_, err = allocator.TransientAlloc(0, 1)
	require.ErrorIs(t, err, memutils.ErrInternalInconsistency)
}

func TestBuildStatsJsonString(t *testing.T) {
	allocator := createTestAllocator(t, 2)
	require.NoError(t, allocator.EnsureProfile(profile.SchemeECDHEX25519, nil))

	_, err := allocator.TransientAlloc(0, 512)
	require.NoError(t, err)

	jsonString, err := allocator.BuildStatsJsonString()
	require.NoError(t, err)

	var report struct {
		Total struct {
			PoolCount       int
			PoolBytes       int
			AllocationCount int
			AllocationBytes int
		}
		TransientPools []struct {
			Capacity  int
			UsedBytes int
		}
		Profiles map[string]struct {
			Capacity  int
			UsedBytes int
		}
	}
	require.NoError(t, json.Unmarshal([]byte(jsonString), &report))

	require.Equal(t, 3, report.Total.PoolCount)
	require.Equal(t, 3*4096, report.Total.PoolBytes)
	require.Len(t, report.TransientPools, 2)
	require.Equal(t, 512, report.TransientPools[0].UsedBytes)
	require.Contains(t, report.Profiles, "SchemeECDHEX25519")
	require.Greater(t, report.Profiles["SchemeECDHEX25519"].UsedBytes, 0)
}
