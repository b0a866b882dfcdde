//go:build (!amd64 && !arm64) || noasm

// relax_stub.go
//
// Portable fall-back for other architectures or when assembly stubs are
// disabled. Relax compiles to nothing and the spin runs at full speed.

package cpu

// Relax is a no-op on unsupported targets.
func Relax() {}
