package profile

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/tlsmem/mpipool/arena"
	"github.com/tlsmem/mpipool/internal/utils"
	"github.com/tlsmem/mpipool/memutils"
	"golang.org/x/exp/slog"
)

// DefaultPoolCapacity is the profile pool capacity used when the consumer does
// not configure one.
const DefaultPoolCapacity = arena.DefaultCapacity

// Registry maps each key-exchange scheme to its lazily created profile pool.
//
// Profile creation runs during configuration loading under a single-writer
// contract: EnsureProfile must not be called concurrently for the same registry
// unless the registry was created with internal synchronization enabled. Once a
// profile exists it is read-mostly and safe for concurrent lookup from
// independent handshakes.
type Registry struct {
	logger *slog.Logger
	mutex  utils.OptionalRWMutex

	profiles     *swiss.Map[Scheme, *Profile]
	poolCapacity int

	// Becomes true once every supported scheme holds a profile, letting the
	// hot path skip the map lookup on massively repeated certificate loads.
	// The transition is one-way.
	allReady bool
}

// NewRegistry creates an empty Registry whose profile pools will be created with
// the provided capacity. When synchronized is false the caller takes over the
// single-writer guarantee for EnsureProfile and Destroy.
func NewRegistry(logger *slog.Logger, poolCapacity int, synchronized bool) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if poolCapacity <= 0 {
		poolCapacity = DefaultPoolCapacity
	}
	err := memutils.CheckPow2(uint(poolCapacity), "profile pool capacity")
	if err != nil {
		return nil, err
	}

	return &Registry{
		logger:       logger,
		mutex:        utils.OptionalRWMutex{UseMutex: synchronized},
		profiles:     swiss.NewMap[Scheme, *Profile](uint32(len(SupportedSchemes()))),
		poolCapacity: poolCapacity,
	}, nil
}

// EnsureProfile creates the profile for the scheme if it does not exist yet. A
// repeated request for an already-populated scheme is a no-op success, so
// certificate loading may call this once per certificate without bookkeeping.
//
// key is the certificate public key. Schemes with a fixed group ignore it;
// SchemeECDH takes its curve from the key.
func (r *Registry) EnsureProfile(scheme Scheme, key any) error {
	r.logger.Debug("Registry::EnsureProfile", slog.String("scheme", scheme.String()))

	if !scheme.IsValid() {
		return cerrors.Wrapf(memutils.ErrConfig, "unrecognized key-exchange scheme %d", scheme)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Every profile was already built by earlier certificates, nothing to scan.
	if r.allReady {
		return nil
	}

	_, populated := r.profiles.Get(scheme)
	if populated {
		return nil
	}

	prof, err := newProfile(scheme, key, r.poolCapacity)
	if err != nil {
		return err
	}
	r.profiles.Put(scheme, prof)

	if r.profiles.Count() == len(SupportedSchemes()) {
		r.allReady = true
	}
	return nil
}

// Profile returns the live profile for the scheme, or memutils.ErrConfig if no
// certificate has populated one yet.
func (r *Registry) Profile(scheme Scheme) (*Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	prof, populated := r.profiles.Get(scheme)
	if !populated {
		return nil, cerrors.Wrapf(memutils.ErrConfig, "no profile exists for scheme %s", scheme)
	}
	return prof, nil
}

// AllReady reports whether every supported scheme holds a profile.
func (r *Registry) AllReady() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.allReady
}

// ProfileCount returns the number of populated profiles.
func (r *Registry) ProfileCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.profiles.Count()
}

// AddDetailedStatistics sums the statistics of every profile pool into the
// provided memutils.DetailedStatistics object.
func (r *Registry) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	r.profiles.Iter(func(scheme Scheme, prof *Profile) bool {
		prof.Pool().AddDetailedStatistics(stats)
		return false
	})
}

// Destroy zeroizes and releases every profile pool. The registry must not be
// used afterwards. Destroy runs at subsystem teardown only- abandoned handshakes
// never require profile cleanup.
func (r *Registry) Destroy() {
	r.logger.Debug("Registry::Destroy")

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.profiles.Iter(func(scheme Scheme, prof *Profile) bool {
		prof.Destroy()
		return false
	})
	r.profiles = swiss.NewMap[Scheme, *Profile](uint32(len(SupportedSchemes())))
	r.allReady = false
}
