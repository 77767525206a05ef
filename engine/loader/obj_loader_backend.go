package loader

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const defaultGroup = "default"

// objLoaderBackendImpl is the implementation of objLoaderBackend.
type objLoaderBackendImpl struct{}

// objLoaderBackend is a loaderBackend implementation for Wavefront OBJ files. It reads positions, normals,
// texture coordinates, groups and faces; faces are fan triangulated. Materials, smoothing groups, lines and
// points are ignored.
type objLoaderBackend interface {
	loaderBackend
}

var _ objLoaderBackend = &objLoaderBackendImpl{}

// newOBJLoaderBackend creates a new OBJ loader backend.
//
// Returns:
//   - objLoaderBackend: the loader backend for OBJ files
func newOBJLoaderBackend() objLoaderBackend {
	return &objLoaderBackendImpl{}
}

func (b *objLoaderBackendImpl) Load(path string) (*ImportedMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open mesh")
	}
	defer f.Close()
	return b.LoadReader(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), f)
}

func (b *objLoaderBackendImpl) LoadReader(name string, r io.Reader) (*ImportedMesh, error) {
	p := &objParser{mesh: &ImportedMesh{Name: name}}
	p.group(defaultGroup)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line++
		if err := p.parseLine(scanner.Text()); err != nil {
			return nil, errors.Wrapf(err, "line %d", p.line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read mesh")
	}
	return p.finish(), nil
}

// objParser accumulates one OBJ stream.
type objParser struct {
	mesh    *ImportedMesh
	current *ImportedSubset
	line    int
	scratch []Corner
}

func (p *objParser) parseLine(text string) error {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "v":
		v, err := parseFloats(fields[1:], 3, 3)
		if err != nil {
			return errors.Wrap(err, "vertex position")
		}
		p.mesh.Positions = append(p.mesh.Positions, [3]float32{v[0], v[1], v[2]})
	case "vn":
		v, err := parseFloats(fields[1:], 3, 3)
		if err != nil {
			return errors.Wrap(err, "vertex normal")
		}
		p.mesh.Normals = append(p.mesh.Normals, [3]float32{v[0], v[1], v[2]})
	case "vt":
		v, err := parseFloats(fields[1:], 1, 2)
		if err != nil {
			return errors.Wrap(err, "texture coordinate")
		}
		p.mesh.UVs = append(p.mesh.UVs, [2]float32{v[0], v[1]})
	case "g":
		name := strings.Join(fields[1:], " ")
		if name == "" {
			name = defaultGroup
		}
		p.group(name)
	case "o":
		p.mesh.Objects++
	case "f":
		return p.face(fields[1:])
	}
	return nil
}

// group starts a new subset. A subset that received no faces is renamed instead of kept.
func (p *objParser) group(name string) {
	if p.current != nil && len(p.current.Corners) == 0 {
		p.current.Name = name
		return
	}
	p.mesh.Subsets = append(p.mesh.Subsets, ImportedSubset{Name: name})
	p.current = &p.mesh.Subsets[len(p.mesh.Subsets)-1]
}

func (p *objParser) face(refs []string) error {
	if len(refs) < 3 {
		return errors.Newf("face with %d vertices", len(refs))
	}
	p.scratch = p.scratch[:0]
	for _, ref := range refs {
		c, err := p.corner(ref)
		if err != nil {
			return err
		}
		p.scratch = append(p.scratch, c)
	}
	for k := 1; k+1 < len(p.scratch); k++ {
		p.current.Corners = append(p.current.Corners, p.scratch[0], p.scratch[k], p.scratch[k+1])
	}
	return nil
}

// corner parses one of v, v/vt, v//vn or v/vt/vn.
func (p *objParser) corner(ref string) (Corner, error) {
	parts := strings.Split(ref, "/")
	if len(parts) > 3 {
		return Corner{}, errors.Newf("malformed face vertex %q", ref)
	}
	c := Corner{Position: -1, UV: -1, Normal: -1}
	var err error
	if c.Position, err = resolveIndex(parts[0], len(p.mesh.Positions)); err != nil {
		return Corner{}, errors.Wrapf(err, "face vertex %q position", ref)
	}
	if c.Position < 0 {
		return Corner{}, errors.Newf("face vertex %q has no position", ref)
	}
	if len(parts) > 1 {
		if c.UV, err = resolveIndex(parts[1], len(p.mesh.UVs)); err != nil {
			return Corner{}, errors.Wrapf(err, "face vertex %q texture coordinate", ref)
		}
	}
	if len(parts) > 2 {
		if c.Normal, err = resolveIndex(parts[2], len(p.mesh.Normals)); err != nil {
			return Corner{}, errors.Wrapf(err, "face vertex %q normal", ref)
		}
	}
	return c, nil
}

// resolveIndex converts a one-based or negative relative OBJ index into a zero-based one. An empty field is
// absent and yields -1.
func resolveIndex(field string, count int) (int32, error) {
	if field == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(field)
	if err != nil {
		return 0, errors.Newf("invalid index %q", field)
	}
	switch {
	case i > 0:
		i--
	case i < 0:
		i += count
	default:
		return 0, errors.New("index 0 is not valid")
	}
	if i < 0 || i >= count {
		return 0, errors.Newf("index %s out of range (%d defined)", field, count)
	}
	return int32(i), nil
}

func parseFloats(fields []string, least, most int) ([]float32, error) {
	if len(fields) < least {
		return nil, errors.Newf("expected at least %d values, got %d", least, len(fields))
	}
	out := make([]float32, most)
	for i := 0; i < most && i < len(fields); i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, errors.Newf("invalid number %q", fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}

// finish drops empty subsets and normalizes the object count.
func (p *objParser) finish() *ImportedMesh {
	m := p.mesh
	kept := m.Subsets[:0]
	for _, s := range m.Subsets {
		if len(s.Corners) > 0 {
			kept = append(kept, s)
		}
	}
	m.Subsets = kept
	if m.Objects == 0 {
		m.Objects = 1
	}
	return m
}
