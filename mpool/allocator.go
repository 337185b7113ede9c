package mpool

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/memutils"
	"github.com/tlsmem/mpipool/profile"
	"golang.org/x/exp/slog"
)

// Allocator owns every pool the handshake layer allocates MPI memory from: one
// transient scratch pool per worker and the registry of persistent per-scheme
// profile pools. It is the process-wide entry point for the subsystem- create it
// once at startup with New and release it at shutdown with Destroy.
//
// The allocator itself performs no blocking operation. Transient pools carry no
// locking at all: each one is owned by exactly one worker, and the scheduling
// discipline above this layer must keep a computation pinned to its worker while
// the pool is in use.
type Allocator struct {
	logger       *slog.Logger
	registry     *profile.Registry
	workers      []*arena.Pool
	poolCapacity int
}

// WorkerCount returns the number of per-worker transient pools.
func (a *Allocator) WorkerCount() int {
	return len(a.workers)
}

// Registry returns the profile registry owned by this allocator.
func (a *Allocator) Registry() *profile.Registry {
	return a.registry
}

// EnsureProfile lazily creates the profile pool for the scheme, running the
// scheme's preparation routine against the certificate public key. It is invoked
// from certificate loading, under the registry's single-writer contract.
func (a *Allocator) EnsureProfile(scheme profile.Scheme, key any) error {
	return a.registry.EnsureProfile(scheme, key)
}

// TransientAlloc allocates size bytes from the worker's transient pool and
// returns a tagged handle for the region. The call fails with
// memutils.ErrOutOfPool when the pool is exhausted, leaving the pool untouched-
// the caller must abort its computation rather than retry.
func (a *Allocator) TransientAlloc(workerID int, size int) (arena.Handle, error) {
	pool, err := a.transientPool(workerID)
	if err != nil {
		return arena.Handle{}, err
	}

	offset, err := pool.Allocate(size)
	if err != nil {
		return arena.Handle{}, err
	}

	return arena.Handle{
		Kind:   arena.KindTransient,
		Owner:  workerID,
		Offset: offset,
		Size:   size,
	}, nil
}

// ResolvePool maps a tagged handle back to the pool that owns it. Transient
// handles resolve through the per-worker table and persistent handles through the
// profile registry. A handle that names no live pool fails with
// memutils.ErrInternalInconsistency and must abort the current operation.
func (a *Allocator) ResolvePool(handle arena.Handle) (*arena.Pool, error) {
	switch handle.Kind {
	case arena.KindTransient:
		if handle.Owner < 0 || handle.Owner >= len(a.workers) || a.workers[handle.Owner] == nil {
			return nil, cerrors.Wrapf(memutils.ErrInternalInconsistency,
				"transient handle names worker %d of %d", handle.Owner, len(a.workers))
		}
		return a.workers[handle.Owner], nil
	case arena.KindPersistent:
		prof, err := a.registry.Profile(profile.Scheme(handle.Owner))
		if err != nil {
			return nil, cerrors.Wrapf(memutils.ErrInternalInconsistency,
				"persistent handle names scheme %d, which has no live profile", handle.Owner)
		}
		return prof.Pool(), nil
	}
	return nil, cerrors.Wrapf(memutils.ErrInternalInconsistency, "handle carries unknown pool kind %d", handle.Kind)
}

// Bytes returns the memory region a handle refers to, after resolving the owning
// pool.
func (a *Allocator) Bytes(handle arena.Handle) ([]byte, error) {
	pool, err := a.ResolvePool(handle)
	if err != nil {
		return nil, err
	}
	return pool.Bytes(handle.Offset, handle.Size)
}

// ResetTransient erases and rewinds the worker's transient pool. The handshake
// driver calls this once per completed temporary computation, and also after an
// aborted one- an aborted computation leaves secrets behind that must not reach
// the next user of the pool.
func (a *Allocator) ResetTransient(workerID int) error {
	pool, err := a.transientPool(workerID)
	if err != nil {
		return err
	}
	pool.Reset()
	memutils.DebugValidate(pool)
	return nil
}

// Destroy tears the subsystem down: every transient pool and every profile pool
// is zeroized and released. The allocator must not be used afterwards.
func (a *Allocator) Destroy() {
	a.logger.Debug("Allocator::Destroy")

	for _, pool := range a.workers {
		if pool != nil {
			pool.Destroy()
		}
	}
	a.workers = nil

	if a.registry != nil {
		a.registry.Destroy()
	}
}

// CalculateStatistics sums the statistics of every live pool, transient and
// persistent, into the provided object.
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) {
	for _, pool := range a.workers {
		if pool != nil && pool.IsLive() {
			pool.AddDetailedStatistics(stats)
		}
	}
	a.registry.AddDetailedStatistics(stats)
}

// BuildStatsJsonString writes a diagnostic report of every pool the allocator
// owns and returns it as a JSON string.
func (a *Allocator) BuildStatsJsonString() (string, error) {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.CalculateStatistics(&stats)

	totalObj := objState.Name("Total").Object()
	totalObj.Name("PoolCount").Int(stats.PoolCount)
	totalObj.Name("PoolBytes").Int(stats.PoolBytes)
	totalObj.Name("AllocationCount").Int(stats.AllocationCount)
	totalObj.Name("AllocationBytes").Int(stats.AllocationBytes)
	totalObj.End()

	workersArray := objState.Name("TransientPools").Array()
	for _, pool := range a.workers {
		poolObj := workersArray.Object()
		pool.PoolJsonData(poolObj)
		poolObj.End()
	}
	workersArray.End()

	profilesObj := objState.Name("Profiles").Object()
	for _, scheme := range profile.SupportedSchemes() {
		prof, err := a.registry.Profile(scheme)
		if err != nil {
			continue
		}
		profObj := profilesObj.Name(scheme.String()).Object()
		prof.Pool().PoolJsonData(profObj)
		profObj.End()
	}
	profilesObj.End()

	objState.End()

	err := writer.Error()
	if err != nil {
		return "", err
	}
	return string(writer.Bytes()), nil
}

func (a *Allocator) transientPool(workerID int) (*arena.Pool, error) {
	if workerID < 0 || workerID >= len(a.workers) || a.workers[workerID] == nil {
		return nil, cerrors.Wrapf(memutils.ErrInternalInconsistency,
			"no transient pool exists for worker %d", workerID)
	}
	return a.workers[workerID], nil
}
