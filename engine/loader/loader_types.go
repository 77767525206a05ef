package loader

// Corner is one triangle corner of an imported face. Indices are zero-based into the mesh's attribute arrays;
// -1 means the attribute is absent.
type Corner struct {
	Position int32
	UV       int32
	Normal   int32
}

// ImportedSubset is one face group of a mesh, already triangulated.
type ImportedSubset struct {
	// Name is the group name, "default" for faces outside any group.
	Name string
	// Corners holds three entries per triangle.
	Corners []Corner
}

// TriangleCount returns the number of triangles in the subset.
func (s ImportedSubset) TriangleCount() int {
	return len(s.Corners) / 3
}

// ImportedMesh is the CPU-side result of parsing a model file: shared attribute arrays and the face groups
// indexing into them.
type ImportedMesh struct {
	Name      string
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Subsets   []ImportedSubset
	// Objects counts the object statements seen. Files without one count as a single object.
	Objects int
}

// TriangleCount returns the number of triangles across all subsets.
func (m *ImportedMesh) TriangleCount() int {
	n := 0
	for _, s := range m.Subsets {
		n += s.TriangleCount()
	}
	return n
}
