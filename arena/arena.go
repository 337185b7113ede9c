package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/tlsmem/mpipool/memutils"
)

// DefaultCapacity is the pool capacity used when the consumer does not configure
// one. It matches one platform memory page, which is enough for the precomputed
// state of every supported key-exchange scheme.
const DefaultCapacity = 4096

// Pool is a fixed-capacity, non-relocating bump allocator over a contiguous byte
// region. Allocations advance a single offset and are never freed individually-
// the consumed region is reclaimed wholesale by Reset or Destroy, and is always
// zeroed before the memory can be observed again.
//
// A Pool performs no internal locking. Transient pools are owned by exactly one
// worker at a time and persistent pools take writes only during configuration
// loading, so synchronization is the caller's responsibility.
type Pool struct {
	mem        []byte
	capacity   int
	offset     int
	allocCount int
}

var _ memutils.Validatable = &Pool{}

// Init prepares the pool for allocations, sizing the backing region to capacity
// bytes. The backing region starts out zeroed and the allocation offset starts at
// zero. Init must be called exactly once before any other method.
func (p *Pool) Init(capacity int) error {
	if capacity <= 0 {
		return errors.Errorf("pool capacity must be positive, but is %d", capacity)
	}
	if p.mem != nil {
		return errors.New("pool is already initialized")
	}
	memutils.DebugCheckPow2(uint(capacity), "pool capacity")

	p.mem = make([]byte, capacity)
	p.capacity = capacity
	p.offset = 0
	p.allocCount = 0
	return nil
}

// Allocate bumps the pool offset by size bytes and returns the offset the
// allocation starts at. If the request does not fit the remaining capacity,
// memutils.ErrOutOfPool is returned and the pool is left exactly as it was- no
// partial mutation happens on failure.
func (p *Pool) Allocate(size int) (int, error) {
	if size <= 0 {
		return 0, errors.Errorf("allocation size must be positive, but is %d", size)
	}
	if p.mem == nil {
		return 0, errors.New("allocating from a destroyed or uninitialized pool")
	}
	// Compared this way around so a huge size cannot overflow past the check
	if size > p.capacity-p.offset {
		return 0, cerrors.Wrapf(memutils.ErrOutOfPool,
			"requested %d bytes with %d of %d in use", size, p.offset, p.capacity)
	}

	offset := p.offset
	p.offset += size
	p.allocCount++
	return offset, nil
}

// Bytes returns the live region [offset, offset+size) of the pool's backing
// memory. The region must lie entirely inside the consumed part of the pool.
func (p *Pool) Bytes(offset, size int) ([]byte, error) {
	if p.mem == nil {
		return nil, errors.New("reading from a destroyed or uninitialized pool")
	}
	if offset < 0 || size < 0 || offset > p.offset || size > p.offset-offset {
		return nil, errors.Errorf("region at offset %d of %d bytes is outside the consumed range [0, %d)",
			offset, size, p.offset)
	}
	return p.mem[offset : offset+size], nil
}

// Reset zeroes the consumed region and rewinds the allocation offset to zero,
// cycling the pool for the next independent computation. The backing memory is
// kept, so the first allocation after a Reset lands at the same offset as the
// pool's very first allocation.
func (p *Pool) Reset() {
	if p.mem == nil {
		return
	}
	memutils.ZeroBytes(p.mem[:p.offset])
	p.offset = 0
	p.allocCount = 0
}

// Destroy zeroes the entire backing region and releases it to the runtime. The
// pool cannot be used again after Destroy.
func (p *Pool) Destroy() {
	if p.mem == nil {
		return
	}
	memutils.ZeroBytes(p.mem)
	p.mem = nil
	p.capacity = 0
	p.offset = 0
	p.allocCount = 0
}

// Capacity returns the total capacity in bytes the pool was initialized with.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Offset returns the number of consumed bytes.
func (p *Pool) Offset() int {
	return p.offset
}

// SumFreeSize returns the number of free bytes of memory in the pool.
func (p *Pool) SumFreeSize() int {
	return p.capacity - p.offset
}

// AllocationCount returns the number of live allocations in the pool, which is the
// number of Allocate calls since the last Reset.
func (p *Pool) AllocationCount() int {
	return p.allocCount
}

// IsEmpty will return true if this pool has no live allocations
func (p *Pool) IsEmpty() bool {
	return p.allocCount == 0
}

// IsLive reports whether the pool has been initialized and not yet destroyed.
func (p *Pool) IsLive() bool {
	return p.mem != nil
}

// Validate performs internal consistency checks on the pool. When the
// implementation is functioning correctly, it should not be possible for this
// method to return an error, but it may assist in diagnosing issues. The free
// region scan makes this expensive, so it is intended for debug builds and tests.
func (p *Pool) Validate() error {
	if p.mem == nil {
		if p.offset != 0 || p.capacity != 0 || p.allocCount != 0 {
			return errors.New("destroyed pool still carries allocation state")
		}
		return nil
	}
	if len(p.mem) != p.capacity {
		return errors.Errorf("the backing region is %d bytes, but the pool capacity is %d", len(p.mem), p.capacity)
	}
	if p.offset < 0 || p.offset > p.capacity {
		return errors.Errorf("the pool offset %d is outside the range [0, %d]", p.offset, p.capacity)
	}
	if p.allocCount > 0 && p.offset == 0 {
		return errors.Errorf("the pool reports %d live allocations but no consumed bytes", p.allocCount)
	}
	if !memutils.IsZeroed(p.mem[p.offset:]) {
		return errors.New("the free region past the pool offset contains residue of a previous allocation")
	}
	return nil
}

// AddStatistics sums this pool's allocation statistics into the statistics
// currently present in the provided memutils.Statistics object.
func (p *Pool) AddStatistics(stats *memutils.Statistics) {
	stats.PoolCount++
	stats.PoolBytes += p.capacity
	stats.AllocationCount += p.allocCount
	stats.AllocationBytes += p.offset
}

// AddDetailedStatistics sums this pool's allocation statistics into the statistics
// currently present in the provided memutils.DetailedStatistics object. Individual
// allocation sizes are not tracked past the bump offset, so the consumed region is
// accounted as a single range.
func (p *Pool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.PoolCount++
	stats.PoolBytes += p.capacity

	if p.offset > 0 {
		stats.AddAllocation(p.offset)
		// AddAllocation counts one range, the pool knows the real call count
		stats.AllocationCount += p.allocCount - 1
	}
	if p.capacity-p.offset > 0 {
		stats.AddUnusedRange(p.capacity - p.offset)
	}
}

// PoolJsonData populates a json object with information about this pool
func (p *Pool) PoolJsonData(json jwriter.ObjectState) {
	json.Name("Capacity").Int(p.capacity)
	json.Name("UsedBytes").Int(p.offset)
	json.Name("FreeBytes").Int(p.SumFreeSize())
	json.Name("Allocations").Int(p.allocCount)
	json.Name("Live").Bool(p.IsLive())
}
