//go:build !debug_mem_utils

package memutils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckZeroed verifies that the provided region contains no leftover byte of a
// previous allocation and panics if it does. Pool memory is zeroed on reset and
// destroy, so a non-zero byte in a supposedly-clean region means secret material
// survived erasure. This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckZeroed(data []byte, name string) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
