package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method. Pools implement it with their internal
// consistency scans.
type Validatable interface {
	Validate() error
}
