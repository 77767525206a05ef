//go:build !debug

package device

// DefaultValidation disables the validation layer in release builds. Build with -tags debug to turn it on.
const DefaultValidation = false
