package mpool

import (
	"runtime"

	cerrors "github.com/cockroachdb/errors"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/memutils"
	"github.com/tlsmem/mpipool/profile"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator and the registry
	// created from it will not be synchronized internally. The consumer must guarantee
	// the configuration-loading path runs single-writer by some other mechanism, but
	// performance may improve because internal mutexes are not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
}

func (f CreateFlags) String() string {
	return createFlagsMapping[f]
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// WorkerCount is the number of transient pools to create, one per worker that
	// will run handshake computations. Zero means one per logical CPU.
	WorkerCount int

	// PoolCapacity is the capacity in bytes of every pool the allocator creates,
	// both transient and profile. It must be a power of two. Zero means one
	// platform memory page.
	PoolCapacity int
}

// New creates a new Allocator and brings up the whole subsystem: one transient
// pool per worker and an empty profile registry. If any transient pool cannot be
// created, every pool created so far is zeroized and released before the error is
// returned.
//
// logger - Destination for this allocator's debug traces. May be nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Allocator::New")

	workerCount := options.WorkerCount
	if workerCount == 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount < 0 {
		return nil, cerrors.Newf("worker count must not be negative, but is %d", workerCount)
	}

	poolCapacity := options.PoolCapacity
	if poolCapacity == 0 {
		poolCapacity = arena.DefaultCapacity
	}
	err := memutils.CheckPow2(uint(poolCapacity), "pool capacity")
	if err != nil {
		return nil, err
	}

	synchronized := options.Flags&AllocatorCreateExternallySynchronized == 0
	registry, err := profile.NewRegistry(logger, poolCapacity, synchronized)
	if err != nil {
		return nil, err
	}

	allocator := &Allocator{
		logger:       logger,
		registry:     registry,
		poolCapacity: poolCapacity,
		workers:      make([]*arena.Pool, workerCount),
	}

	for worker := 0; worker < workerCount; worker++ {
		pool := &arena.Pool{}
		err = pool.Init(poolCapacity)
		if err != nil {
			allocator.Destroy()
			return nil, cerrors.Wrapf(err, "failed to create the transient pool for worker %d", worker)
		}
		allocator.workers[worker] = pool
	}

	return allocator, nil
}
