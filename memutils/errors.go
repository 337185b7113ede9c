package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfPool is returned from pool allocation methods when the requested size does not
// fit into the remaining capacity of the pool. The failed allocation leaves the pool
// untouched. The allocator never retries internally- callers must abort the in-flight
// computation, or reset the pool, before allocating again.
var ErrOutOfPool error = errors.New("pool capacity exceeded")

// ErrConfig is returned when a key-exchange scheme is unsupported, its preparation
// routine is not implemented, or its precomputed state cannot fit a pool's fixed
// capacity. It is surfaced at certificate-load or bind time, before a handshake starts.
var ErrConfig error = errors.New("unusable key-exchange configuration")

// ErrInternalInconsistency is returned when a handle resolves to neither a live
// transient pool nor a live profile pool. Callers must treat it as fatal for the
// current operation- continuing risks touching memory outside any owned region.
var ErrInternalInconsistency error = errors.New("handle does not resolve to any live pool")
