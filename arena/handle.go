package arena

// PoolKind discriminates the two roles a Pool can serve. A pool is created in one
// role and keeps it for its whole life- the two roles are never mixed on one pool.
type PoolKind uint32

const (
	// KindTransient marks a per-worker scratch pool holding intermediate values of a
	// single handshake step. Transient pools are cycled with Reset between
	// independent computations.
	KindTransient PoolKind = iota + 1
	// KindPersistent marks a profile pool holding precomputed state for one
	// key-exchange scheme. Persistent pools live until subsystem teardown and are
	// shared read-mostly across handshakes.
	KindPersistent
)

var poolKindMapping = map[PoolKind]string{
	KindTransient:  "KindTransient",
	KindPersistent: "KindPersistent",
}

func (k PoolKind) String() string {
	return poolKindMapping[k]
}

// Handle identifies one allocation made from a Pool. Instead of inferring the owning
// pool from the address of the allocation, every handle carries an explicit tag:
// the pool kind and the owner id (worker index for transient pools, scheme ordinal
// for persistent pools). Resolving a handle back to its pool is a table lookup,
// never address arithmetic.
type Handle struct {
	Kind   PoolKind
	Owner  int
	Offset int
	Size   int
}

// End returns the offset one past the last byte of the allocation.
func (h Handle) End() int {
	return h.Offset + h.Size
}
