package loader

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeOBJ selects the Wavefront OBJ loader backend.
	BackendTypeOBJ LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	meshCache map[string]*ImportedMesh

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching meshes.
// It abstracts the file format behind a generic backend and manages a cache of previously loaded meshes.
type Loader interface {
	// Load imports a mesh file and caches the result.
	// If the mesh is already cached (by file path), the cached version is returned.
	// The backend is selected based on the file extension.
	//
	// Parameters:
	//   - path: the file path to the mesh file
	//
	// Returns:
	//   - *ImportedMesh: the loaded and cached mesh
	//   - error: error if loading fails
	Load(path string) (*ImportedMesh, error)

	// LoadReader imports a mesh from a reader stream and caches it by the given name.
	//
	// Parameters:
	//   - name: the cache key for the loaded mesh
	//   - r: the reader providing model data
	//
	// Returns:
	//   - *ImportedMesh: the loaded mesh
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader) (*ImportedMesh, error)

	// Get retrieves a cached mesh by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - *ImportedMesh: the cached mesh or nil
	Get(name string) *ImportedMesh

	// Meshes returns a copy of the mesh cache.
	//
	// Returns:
	//   - map[string]*ImportedMesh: all cached meshes keyed by name
	Meshes() map[string]*ImportedMesh
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeOBJ)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		meshCache: make(map[string]*ImportedMesh),
	}

	switch backendType {
	case BackendTypeOBJ:
		fallthrough
	default:
		l.backend = newOBJLoaderBackend()
	}

	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Load(path string) (*ImportedMesh, error) {
	l.mu.RLock()
	if cached, ok := l.meshCache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	mesh, err := backend.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	log.Printf("[Loader] %s: %d positions, %d triangles in %d subsets", path, len(mesh.Positions), mesh.TriangleCount(), len(mesh.Subsets))

	l.mu.Lock()
	l.meshCache[path] = mesh
	l.mu.Unlock()
	return mesh, nil
}

func (l *loader) LoadReader(name string, r io.Reader) (*ImportedMesh, error) {
	l.mu.RLock()
	if cached, ok := l.meshCache[name]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	mesh, err := l.backend.LoadReader(name, r)
	if err != nil {
		return nil, errors.Wrapf(err, "load from reader %q", name)
	}

	l.mu.Lock()
	l.meshCache[name] = mesh
	l.mu.Unlock()
	return mesh, nil
}

func (l *loader) Get(name string) *ImportedMesh {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meshCache[name]
}

func (l *loader) Meshes() map[string]*ImportedMesh {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*ImportedMesh, len(l.meshCache))
	for k, v := range l.meshCache {
		result[k] = v
	}
	return result
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only Wavefront OBJ is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".obj":
		return l.backend, nil
	default:
		return nil, errors.Newf("unsupported model format: %s", ext)
	}
}
