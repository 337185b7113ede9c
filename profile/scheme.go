package profile

import (
	"crypto/elliptic"
)

// Scheme identifies a public-key exchange family. Each scheme gets its own memory
// layout and precomputed state, so each one maps to at most one profile pool.
type Scheme uint32

const (
	// SchemeECDH is static elliptic-curve Diffie-Hellman with the curve taken from
	// the certificate key.
	SchemeECDH Scheme = iota + 1
	// SchemeDHM is finite-field Diffie-Hellman.
	SchemeDHM
	// SchemeECDHESecp256 is ephemeral ECDH over NIST P-256.
	SchemeECDHESecp256
	// SchemeECDHESecp384 is ephemeral ECDH over NIST P-384.
	SchemeECDHESecp384
	// SchemeECDHESecp521 is ephemeral ECDH over NIST P-521.
	SchemeECDHESecp521
	// SchemeECDHEX25519 is ephemeral Diffie-Hellman over Curve25519.
	SchemeECDHEX25519
)

var schemeMapping = map[Scheme]string{
	SchemeECDH:         "SchemeECDH",
	SchemeDHM:          "SchemeDHM",
	SchemeECDHESecp256: "SchemeECDHESecp256",
	SchemeECDHESecp384: "SchemeECDHESecp384",
	SchemeECDHESecp521: "SchemeECDHESecp521",
	SchemeECDHEX25519:  "SchemeECDHEX25519",
}

func (s Scheme) String() string {
	return schemeMapping[s]
}

// IsValid reports whether the value names a known scheme.
func (s Scheme) IsValid() bool {
	_, ok := schemeMapping[s]
	return ok
}

// SupportedSchemes returns every scheme the registry can hold a profile for, in
// stable order.
func SupportedSchemes() []Scheme {
	return []Scheme{
		SchemeECDH,
		SchemeDHM,
		SchemeECDHESecp256,
		SchemeECDHESecp384,
		SchemeECDHESecp521,
		SchemeECDHEX25519,
	}
}

// fixedCurve returns the curve a scheme always uses, or nil for schemes whose group
// comes from the certificate key or which are not elliptic-curve schemes at all.
func (s Scheme) fixedCurve() elliptic.Curve {
	switch s {
	case SchemeECDHESecp256:
		return elliptic.P256()
	case SchemeECDHESecp384:
		return elliptic.P384()
	case SchemeECDHESecp521:
		return elliptic.P521()
	}
	return nil
}
