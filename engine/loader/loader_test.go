package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const cubeOBJ = `# unit cube
o cube
v -1 -1 -1
v  1 -1 -1
v  1  1 -1
v -1  1 -1
v -1 -1  1
v  1 -1  1
v  1  1  1
v -1  1  1
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 -1
vn 0 0 1
vn -1 0 0
vn 1 0 0
vn 0 -1 0
vn 0 1 0
f 1/1/1 4/4/1 3/3/1 2/2/1
f 5/1/2 6/2/2 7/3/2 8/4/2
f 1/1/3 5/2/3 8/3/3 4/4/3
f 2/1/4 3/4/4 7/3/4 6/2/4
f 1/1/5 2/2/5 6/3/5 5/4/5
f 4/1/6 8/2/6 7/3/6 3/4/6
`

func loadString(t *testing.T, src string) *ImportedMesh {
	t.Helper()
	m, err := newOBJLoaderBackend().LoadReader("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadReader: %v", err)
	}
	return m
}

func TestCube(t *testing.T) {
	m := loadString(t, cubeOBJ)
	if len(m.Positions) != 8 || len(m.UVs) != 4 || len(m.Normals) != 6 {
		t.Fatalf("attributes: %d positions, %d uvs, %d normals", len(m.Positions), len(m.UVs), len(m.Normals))
	}
	if len(m.Subsets) != 1 || m.Subsets[0].Name != defaultGroup {
		t.Fatalf("subsets = %+v", m.Subsets)
	}
	if m.TriangleCount() != 12 {
		t.Fatalf("triangles = %d, want 12", m.TriangleCount())
	}
	if m.Objects != 1 {
		t.Fatalf("objects = %d", m.Objects)
	}
	first := m.Subsets[0].Corners[:3]
	want := []Corner{{0, 0, 0}, {3, 3, 0}, {2, 2, 0}}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("corner %d = %+v, want %+v", i, first[i], want[i])
		}
	}
}

func TestFanTriangulation(t *testing.T) {
	m := loadString(t, "v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0.5 2 0\nv 0 1 0\nf 1 2 3 4 5\n")
	c := m.Subsets[0].Corners
	if len(c) != 9 {
		t.Fatalf("corners = %d, want 9", len(c))
	}
	for tri := 0; tri < 3; tri++ {
		if c[tri*3].Position != 0 || c[tri*3+1].Position != int32(tri+1) || c[tri*3+2].Position != int32(tri+2) {
			t.Errorf("triangle %d = %+v", tri, c[tri*3:tri*3+3])
		}
		if c[tri*3].UV != -1 || c[tri*3].Normal != -1 {
			t.Errorf("triangle %d has attributes it never declared", tri)
		}
	}
}

func TestNegativeIndicesAndFormats(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vn 0 0 1
f -3//-1 -2//-1 -1//-1
f 1/1 2/1 3/1
`
	m := loadString(t, src)
	c := m.Subsets[0].Corners
	if c[0] != (Corner{0, -1, 0}) || c[2] != (Corner{2, -1, 0}) {
		t.Errorf("relative corners = %+v", c[:3])
	}
	if c[3] != (Corner{0, 0, -1}) {
		t.Errorf("v/vt corner = %+v", c[3])
	}
}

func TestGroups(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
g empty
g body
f 1 2 3
g head
f 3 2 1
f 1 3 2
`
	m := loadString(t, src)
	if len(m.Subsets) != 2 {
		t.Fatalf("subsets = %d, want 2", len(m.Subsets))
	}
	if m.Subsets[0].Name != "body" || m.Subsets[0].TriangleCount() != 1 {
		t.Errorf("subset 0 = %s with %d triangles", m.Subsets[0].Name, m.Subsets[0].TriangleCount())
	}
	if m.Subsets[1].Name != "head" || m.Subsets[1].TriangleCount() != 2 {
		t.Errorf("subset 1 = %s with %d triangles", m.Subsets[1].Name, m.Subsets[1].TriangleCount())
	}
}

func TestObjectCount(t *testing.T) {
	m := loadString(t, "o a\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\no b\nf 1 3 2\n")
	if m.Objects != 2 {
		t.Errorf("objects = %d, want 2", m.Objects)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short vertex", "v 1 2\n"},
		{"bad number", "v 1 x 3\n"},
		{"two-vertex face", "v 0 0 0\nv 1 0 0\nf 1 2\n"},
		{"zero index", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n"},
		{"out of range", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n"},
		{"relative out of range", "v 0 0 0\nf -1 -2 -3\n"},
		{"missing uv", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/1 2/1 3/1\n"},
		{"too many slashes", "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/1/1/1 2 3\n"},
	}
	for _, tt := range tests {
		if _, err := newOBJLoaderBackend().LoadReader(tt.name, strings.NewReader(tt.src)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoaderCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube.obj")
	if err := os.WriteFile(path, []byte(cubeOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(BackendTypeOBJ)
	first, err := l.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := l.Load(path)
	if err != nil || second != first {
		t.Fatal("second load did not come from the cache")
	}
	if first.Name != "cube" {
		t.Errorf("name = %q", first.Name)
	}
	if l.Get(path) != first || len(l.Meshes()) != 1 {
		t.Error("cache lookup failed")
	}
	if _, err := l.Load(filepath.Join(dir, "cube.gltf")); err == nil {
		t.Error("unsupported extension accepted")
	}

	pre := &ImportedMesh{Name: "pre"}
	if NewLoader(BackendTypeOBJ, WithMesh("pre", pre)).Get("pre") != pre {
		t.Error("WithMesh did not seed the cache")
	}
}
