//go:build windows

package device

import (
	"syscall"

	"github.com/cockroachdb/errors"
)

func openLoader() (uintptr, error) {
	lib, err := syscall.LoadLibrary("vulkan-1.dll")
	if err != nil {
		return 0, errors.Wrap(err, "open vulkan loader")
	}
	return uintptr(lib), nil
}

func loaderSymbol(lib uintptr, name string) (uintptr, error) {
	return syscall.GetProcAddress(syscall.Handle(lib), name)
}
