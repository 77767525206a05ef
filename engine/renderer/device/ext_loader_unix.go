//go:build linux || darwin || freebsd

package device

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/purego"
)

func loaderNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libvulkan.1.dylib", "libvulkan.dylib", "libMoltenVK.dylib"}
	}
	return []string{"libvulkan.so.1", "libvulkan.so"}
}

func openLoader() (uintptr, error) {
	var errs error
	for _, name := range loaderNames() {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	return 0, errors.Wrap(errs, "open vulkan loader")
}

func loaderSymbol(lib uintptr, name string) (uintptr, error) {
	return purego.Dlsym(lib, name)
}
