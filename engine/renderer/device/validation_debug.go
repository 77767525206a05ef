//go:build debug

package device

// DefaultValidation enables the Khronos validation layer and the debug report callback in debug builds.
const DefaultValidation = true
