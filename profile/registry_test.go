package profile_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tlsmem/mpipool/memutils"
	"github.com/tlsmem/mpipool/profile"
)

func TestEnsureProfileIdempotent(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp256, nil))

	prof, err := registry.Profile(profile.SchemeECDHESecp256)
	require.NoError(t, err)
	usedBefore := prof.Pool().Offset()
	require.Greater(t, usedBefore, 0)

	// A repeated request is a no-op success on the same profile
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp256, nil))

	again, err := registry.Profile(profile.SchemeECDHESecp256)
	require.NoError(t, err)
	require.Same(t, prof, again)
	require.Equal(t, usedBefore, again.Pool().Offset())
}

func TestEnsureProfileIndependentSchemes(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp256, nil))
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp384, nil))

	prof256, err := registry.Profile(profile.SchemeECDHESecp256)
	require.NoError(t, err)
	prof384, err := registry.Profile(profile.SchemeECDHESecp384)
	require.NoError(t, err)

	require.NotSame(t, prof256, prof384)
	require.Equal(t, profile.SchemeECDHESecp256, prof256.Scheme())
	require.Equal(t, profile.SchemeECDHESecp384, prof384.Scheme())

	// P-384 coordinates are wider, so its precomputed state is strictly larger
	require.Greater(t, prof384.Pool().Offset(), prof256.Pool().Offset())
	require.Equal(t, 2, registry.ProfileCount())
}

func TestAllReadyNeverSetPrematurely(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	require.False(t, registry.AllReady())

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	require.NoError(t, registry.EnsureProfile(profile.SchemeECDH, &key.PublicKey))
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp256, nil))
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp384, nil))
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp521, nil))
	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHEX25519, nil))

	// Every creatable scheme holds a profile, but the finite-field DH slot is
	// still empty- the fast-path flag must not flip early.
	require.Equal(t, len(profile.SupportedSchemes())-1, registry.ProfileCount())
	require.False(t, registry.AllReady())
}

func TestEnsureProfileUnimplementedScheme(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	err = registry.EnsureProfile(profile.SchemeDHM, nil)
	require.ErrorIs(t, err, memutils.ErrConfig)

	_, err = registry.Profile(profile.SchemeDHM)
	require.ErrorIs(t, err, memutils.ErrConfig)
}

func TestEnsureProfileUnknownScheme(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	err = registry.EnsureProfile(profile.Scheme(0), nil)
	require.ErrorIs(t, err, memutils.ErrConfig)
	err = registry.EnsureProfile(profile.Scheme(99), nil)
	require.ErrorIs(t, err, memutils.ErrConfig)
}

func TestEnsureProfileTableTooLarge(t *testing.T) {
	// 256 bytes cannot hold a P-256 comb table
	registry, err := profile.NewRegistry(nil, 256, true)
	require.NoError(t, err)
	defer registry.Destroy()

	err = registry.EnsureProfile(profile.SchemeECDHESecp256, nil)
	require.ErrorIs(t, err, memutils.ErrConfig)

	// The failed preparation must not leave a half-built profile behind
	_, err = registry.Profile(profile.SchemeECDHESecp256)
	require.ErrorIs(t, err, memutils.ErrConfig)
}

func TestEnsureProfileECDHKeyMismatch(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)
	defer registry.Destroy()

	err = registry.EnsureProfile(profile.SchemeECDH, nil)
	require.ErrorIs(t, err, memutils.ErrConfig)

	err = registry.EnsureProfile(profile.SchemeECDH, "not a key")
	require.ErrorIs(t, err, memutils.ErrConfig)
}

func TestRegistryDestroyErasesProfiles(t *testing.T) {
	registry, err := profile.NewRegistry(nil, 0, true)
	require.NoError(t, err)

	require.NoError(t, registry.EnsureProfile(profile.SchemeECDHESecp256, nil))
	prof, err := registry.Profile(profile.SchemeECDHESecp256)
	require.NoError(t, err)

	table, err := prof.Table()
	require.NoError(t, err)
	require.False(t, memutils.IsZeroed(table))

	registry.Destroy()

	// The held reference observes the zeroized region
	require.True(t, memutils.IsZeroed(table))
	require.False(t, prof.Pool().IsLive())

	_, err = registry.Profile(profile.SchemeECDHESecp256)
	require.ErrorIs(t, err, memutils.ErrConfig)
}
