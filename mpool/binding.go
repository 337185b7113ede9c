package mpool

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/memutils"
	"github.com/tlsmem/mpipool/profile"
	"golang.org/x/exp/slog"
)

// Binding associates one in-flight handshake with the memory it may use: the
// shared, read-mostly profile pool of its key-exchange scheme and the transient
// pool of the worker the handshake is pinned to. It lives for the duration of one
// key exchange.
//
// The profile pool is shared by reference across every handshake using the
// scheme- a binding never writes into it. Per-handshake values are carved out of
// the worker's transient pool instead, and Release erases them when the exchange
// finishes or aborts.
type Binding struct {
	allocator *Allocator
	prof      *profile.Profile
	workerID  int
}

// Bind resolves the profile for the scheme and associates it with a handshake
// running on the given worker. The profile must already exist- certificate
// loading creates profiles, binding only looks them up- so a missing profile
// fails with memutils.ErrConfig and the handshake never starts.
func (a *Allocator) Bind(workerID int, scheme profile.Scheme) (*Binding, error) {
	a.logger.Debug("Allocator::Bind",
		slog.Int("worker", workerID), slog.String("scheme", scheme.String()))

	_, err := a.transientPool(workerID)
	if err != nil {
		return nil, err
	}

	prof, err := a.registry.Profile(scheme)
	if err != nil {
		return nil, err
	}

	return &Binding{
		allocator: a,
		prof:      prof,
		workerID:  workerID,
	}, nil
}

// Scheme returns the key-exchange scheme this binding resolved.
func (b *Binding) Scheme() profile.Scheme {
	return b.prof.Scheme()
}

// WorkerID returns the worker whose transient pool backs this binding.
func (b *Binding) WorkerID() int {
	return b.workerID
}

// Params returns the scheme's precomputed group parameters from the shared
// profile pool.
func (b *Binding) Params() ([]byte, error) {
	return b.prof.Params()
}

// Table returns the scheme's precomputed table from the shared profile pool.
func (b *Binding) Table() ([]byte, error) {
	return b.prof.Table()
}

// TransientAlloc allocates scratch memory for an intermediate MPI value from the
// bound worker's transient pool.
func (b *Binding) TransientAlloc(size int) (arena.Handle, error) {
	if b.allocator == nil {
		return arena.Handle{}, cerrors.Wrap(memutils.ErrInternalInconsistency,
			"allocating from a released binding")
	}
	return b.allocator.TransientAlloc(b.workerID, size)
}

// Release erases the handshake's transient allocations and cycles the worker's
// pool for the next computation. It must run on every exit path, including
// aborted handshakes- the shared profile pool needs no cleanup, but transient
// secrets must never survive into an unrelated computation.
func (b *Binding) Release() error {
	if b.allocator == nil {
		return nil
	}
	err := b.allocator.ResetTransient(b.workerID)
	b.allocator = nil
	b.prof = nil
	return err
}
