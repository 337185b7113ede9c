package mpool

import (
	"os"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

type fileOptions struct {
	WorkerCount            int  `toml:"worker_count"`
	PoolCapacity           int  `toml:"pool_capacity"`
	ExternallySynchronized bool `toml:"externally_synchronized"`
}

// LoadOptionsFromFile reads CreateOptions from a TOML file. Missing keys keep
// their zero value and fall back to the same defaults New applies. The expected
// shape:
//
//	worker_count = 8
//	pool_capacity = 4096
//	externally_synchronized = false
func LoadOptionsFromFile(path string) (CreateOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CreateOptions{}, cerrors.Wrapf(err, "failed to read the allocator config at %s", path)
	}
	return parseOptions(data)
}

func parseOptions(data []byte) (CreateOptions, error) {
	var parsed fileOptions
	err := toml.Unmarshal(data, &parsed)
	if err != nil {
		return CreateOptions{}, cerrors.Wrap(err, "malformed allocator config")
	}

	if parsed.WorkerCount < 0 {
		return CreateOptions{}, cerrors.Newf("worker_count must not be negative, but is %d", parsed.WorkerCount)
	}
	if parsed.PoolCapacity < 0 {
		return CreateOptions{}, cerrors.Newf("pool_capacity must not be negative, but is %d", parsed.PoolCapacity)
	}

	options := CreateOptions{
		WorkerCount:  parsed.WorkerCount,
		PoolCapacity: parsed.PoolCapacity,
	}
	if parsed.ExternallySynchronized {
		options.Flags |= AllocatorCreateExternallySynchronized
	}
	return options, nil
}
