package profile

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"

	cerrors "github.com/cockroachdb/errors"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/memutils"
	"golang.org/x/crypto/curve25519"
)

// windowOrder is the fixed window width of the precomputed comb tables written
// into elliptic-curve profiles. Larger orders speed up the point multiplication a
// handshake performs, at the cost of a bigger table in the profile pool.
const windowOrder = 4

// Profile owns the persistent pool holding precomputed state for one key-exchange
// scheme. It is created at most once per scheme, stays read-mostly after creation,
// and is shared by reference across every handshake using that scheme.
type Profile struct {
	scheme Scheme
	pool   arena.Pool

	params arena.Handle
	table  arena.Handle
}

// Scheme returns the key-exchange scheme this profile was prepared for.
func (p *Profile) Scheme() Scheme {
	return p.scheme
}

// Pool returns the profile's backing pool.
func (p *Profile) Pool() *arena.Pool {
	return &p.pool
}

// Params returns the region holding the scheme's group parameters.
func (p *Profile) Params() ([]byte, error) {
	return p.pool.Bytes(p.params.Offset, p.params.Size)
}

// Table returns the region holding the scheme's precomputed table.
func (p *Profile) Table() ([]byte, error) {
	return p.pool.Bytes(p.table.Offset, p.table.Size)
}

// Destroy zeroizes and releases the profile pool. Only the registry calls this,
// at subsystem teardown.
func (p *Profile) Destroy() {
	p.pool.Destroy()
}

func (p *Profile) handle(offset, size int) arena.Handle {
	return arena.Handle{
		Kind:   arena.KindPersistent,
		Owner:  int(p.scheme),
		Offset: offset,
		Size:   size,
	}
}

// newProfile allocates a fresh pool and runs the scheme's preparation routine,
// returning either a fully populated profile or an error. A failed preparation
// never leaks a partially initialized profile- the pool is zeroized and released
// before the error is returned.
func newProfile(scheme Scheme, key any, capacity int) (*Profile, error) {
	prof := &Profile{scheme: scheme}
	err := prof.pool.Init(capacity)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeECDHESecp256, SchemeECDHESecp384, SchemeECDHESecp521:
		err = prof.prepareEC(scheme.fixedCurve())
	case SchemeECDH:
		err = prof.prepareECFromKey(key)
	case SchemeECDHEX25519:
		err = prof.prepareX25519()
	case SchemeDHM:
		err = cerrors.Wrap(memutils.ErrConfig, "finite-field DH profile preparation is not implemented")
	default:
		err = cerrors.Wrapf(memutils.ErrConfig, "unrecognized key-exchange scheme %d", scheme)
	}

	if err != nil {
		prof.pool.Destroy()
		return nil, err
	}

	memutils.DebugValidate(&prof.pool)
	return prof, nil
}

func (p *Profile) prepareECFromKey(key any) error {
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok || ecKey.Curve == nil {
		return cerrors.Wrapf(memutils.ErrConfig,
			"scheme %s requires an elliptic-curve certificate key, but got %T", p.scheme, key)
	}
	return p.prepareEC(ecKey.Curve)
}

// prepareEC writes the curve's group parameters and a windowed precomputation
// table of odd base-point multiples into the profile pool. The table is sized by
// the curve bit length and the fixed window order and must fit the pool's
// capacity in full- an oversized curve fails the preparation instead of storing a
// truncated table.
func (p *Profile) prepareEC(curve elliptic.Curve) error {
	if curve == nil {
		return cerrors.Wrapf(memutils.ErrConfig, "scheme %s does not name an elliptic curve", p.scheme)
	}

	grp := curve.Params()
	coordLen := (grp.BitSize + 7) / 8
	pointLen := 2 * coordLen
	tableEntries := 1 << (windowOrder - 1)
	// One recoding digit per window column, plus the carry column.
	combCols := (grp.BitSize+windowOrder-1)/windowOrder + 1

	needed := pointLen + tableEntries*pointLen + combCols
	if needed > p.pool.Capacity() {
		return cerrors.Wrapf(memutils.ErrConfig,
			"the %s precomputed state needs %d bytes, but the profile pool holds %d",
			p.scheme, needed, p.pool.Capacity())
	}

	paramsOffset, err := p.pool.Allocate(pointLen)
	if err != nil {
		return err
	}
	params, err := p.pool.Bytes(paramsOffset, pointLen)
	if err != nil {
		return err
	}
	grp.Gx.FillBytes(params[:coordLen])
	grp.Gy.FillBytes(params[coordLen:])
	p.params = p.handle(paramsOffset, pointLen)

	tableOffset, err := p.pool.Allocate(tableEntries * pointLen)
	if err != nil {
		return err
	}
	table, err := p.pool.Bytes(tableOffset, tableEntries*pointLen)
	if err != nil {
		return err
	}

	multiple := new(big.Int)
	scalar := make([]byte, coordLen)
	for i := 0; i < tableEntries; i++ {
		multiple.SetInt64(int64(2*i + 1))
		multiple.FillBytes(scalar)

		x, y := curve.ScalarBaseMult(scalar)
		entry := table[i*pointLen : (i+1)*pointLen]
		x.FillBytes(entry[:coordLen])
		y.FillBytes(entry[coordLen:])
	}
	p.table = p.handle(tableOffset, tableEntries*pointLen)

	// The recoding scratch stays zeroed until a handshake copies the profile.
	_, err = p.pool.Allocate(combCols)
	return err
}

// prepareX25519 stores the Curve25519 base point and runs a deterministic
// commutativity self-check of the scalar multiplication the handshake will rely
// on. Curve25519 uses a Montgomery ladder with no precomputed table, so the
// profile carries only the group parameters.
func (p *Profile) prepareX25519() error {
	var scalarA, scalarB [32]byte
	for i := range scalarA {
		scalarA[i] = byte(i + 1)
		scalarB[i] = byte(255 - i)
	}

	pubA, err := curve25519.X25519(scalarA[:], curve25519.Basepoint)
	if err != nil {
		return cerrors.Wrap(memutils.ErrConfig, "curve25519 rejected the self-check scalar")
	}
	pubB, err := curve25519.X25519(scalarB[:], curve25519.Basepoint)
	if err != nil {
		return cerrors.Wrap(memutils.ErrConfig, "curve25519 rejected the self-check scalar")
	}
	sharedAB, err := curve25519.X25519(scalarA[:], pubB)
	if err != nil {
		return cerrors.Wrap(memutils.ErrConfig, "curve25519 self-check failed")
	}
	sharedBA, err := curve25519.X25519(scalarB[:], pubA)
	if err != nil {
		return cerrors.Wrap(memutils.ErrConfig, "curve25519 self-check failed")
	}
	for i := range sharedAB {
		if sharedAB[i] != sharedBA[i] {
			return cerrors.Wrap(memutils.ErrConfig, "curve25519 scalar multiplication is not commutative")
		}
	}
	memutils.ZeroBytes(sharedAB)
	memutils.ZeroBytes(sharedBA)

	paramsOffset, err := p.pool.Allocate(len(curve25519.Basepoint))
	if err != nil {
		return err
	}
	params, err := p.pool.Bytes(paramsOffset, len(curve25519.Basepoint))
	if err != nil {
		return err
	}
	copy(params, curve25519.Basepoint)
	p.params = p.handle(paramsOffset, len(curve25519.Basepoint))

	// Scratch template for the ephemeral private, public and shared values.
	scratchOffset, err := p.pool.Allocate(3 * 32)
	if err != nil {
		return err
	}
	p.table = p.handle(scratchOffset, 3*32)
	return nil
}
