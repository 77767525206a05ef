package loader

import (
	"io"
)

// loaderBackend defines the generic interface for loading meshes from files or streams.
// Concrete implementations (e.g., objLoaderBackend) handle format-specific details.
type loaderBackend interface {
	// Load parses the mesh at the given file path.
	//
	// Parameters:
	//   - path: the file path to load
	//
	// Returns:
	//   - *ImportedMesh: the imported mesh data
	//   - error: error if reading or parsing fails
	Load(path string) (*ImportedMesh, error)

	// LoadReader parses a mesh from a reader stream.
	//
	// Parameters:
	//   - name: the name given to the imported mesh
	//   - r: the reader providing model data
	//
	// Returns:
	//   - *ImportedMesh: the imported mesh data
	//   - error: error if parsing fails
	LoadReader(name string, r io.Reader) (*ImportedMesh, error)
}
