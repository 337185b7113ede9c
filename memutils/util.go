package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// ZeroBytes overwrites every byte of the slice with zero. It is used to scrub
// cryptographic secrets out of pool memory before the region is reused or handed
// back to the runtime.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// IsZeroed reports whether every byte of the slice is zero.
func IsZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
