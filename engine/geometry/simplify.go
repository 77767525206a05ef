package geometry

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// quadric is a symmetric 4x4 error quadric (Garland and Heckbert) plus the area weight it accumulated.
type quadric struct {
	a2, b2, c2, ab, ac, bc, ad, bd, cd, d2 float64
	w                                      float64
}

func planeQuadric(n mgl32.Vec3, d float32, w float64) quadric {
	a, b, c, dd := float64(n[0]), float64(n[1]), float64(n[2]), float64(d)
	return quadric{
		a2: a * a * w, b2: b * b * w, c2: c * c * w,
		ab: a * b * w, ac: a * c * w, bc: b * c * w,
		ad: a * dd * w, bd: b * dd * w, cd: c * dd * w,
		d2: dd * dd * w,
		w:  w,
	}
}

func (q quadric) add(o quadric) quadric {
	return quadric{
		q.a2 + o.a2, q.b2 + o.b2, q.c2 + o.c2,
		q.ab + o.ab, q.ac + o.ac, q.bc + o.bc,
		q.ad + o.ad, q.bd + o.bd, q.cd + o.cd,
		q.d2 + o.d2, q.w + o.w,
	}
}

// eval returns the area-weighted mean squared distance from p to the quadric's planes.
func (q quadric) eval(p [3]float32) float64 {
	x, y, z := float64(p[0]), float64(p[1]), float64(p[2])
	e := q.a2*x*x + q.b2*y*y + q.c2*z*z +
		2*(q.ab*x*y+q.ac*x*z+q.bc*y*z) +
		2*(q.ad*x+q.bd*y+q.cd*z) +
		q.d2
	if q.w == 0 {
		return 0
	}
	return math.Abs(e) / q.w
}

type collapse struct {
	from, to uint32
	cost     float64
}

// Simplify reduces an index buffer toward targetIndexCount by collapsing edges onto existing vertices, cheapest
// first, while the quadric error stays within targetError. Vertices on open borders and on attribute seams
// (several vertices sharing a position) never move. The result never has more indices than the input.
//
// Parameters:
//   - indices: the index buffer to simplify
//   - positions: vertex positions
//   - targetIndexCount: the index count to stop at
//   - targetError: the largest allowed deviation, in mesh units
//
// Returns:
//   - []uint32: the simplified indices
//   - float32: the largest deviation introduced, in mesh units
func Simplify(indices []uint32, positions [][3]float32, targetIndexCount int, targetError float32) ([]uint32, float32) {
	tris := make([][3]uint32, 0, len(indices)/3)
	for t := 0; t+2 < len(indices); t += 3 {
		tris = append(tris, [3]uint32{indices[t], indices[t+1], indices[t+2]})
	}
	if len(tris)*3 <= targetIndexCount {
		return flatten(tris), 0
	}

	locked := lockedVertices(tris, positions)
	quadrics := make([]quadric, len(positions))
	for _, t := range tris {
		a, b, c := mgl32.Vec3(positions[t[0]]), mgl32.Vec3(positions[t[1]]), mgl32.Vec3(positions[t[2]])
		n := b.Sub(a).Cross(c.Sub(a))
		area := n.Len()
		if area == 0 {
			continue
		}
		n = n.Mul(1 / area)
		q := planeQuadric(n, -n.Dot(a), float64(area))
		for _, v := range t {
			quadrics[v] = quadrics[v].add(q)
		}
	}

	limit := float64(targetError) * float64(targetError)
	var worst float64
	for len(tris)*3 > targetIndexCount {
		adj := make(map[uint32][]int, len(tris))
		for i, t := range tris {
			for _, v := range t {
				adj[v] = append(adj[v], i)
			}
		}

		var candidates []collapse
		for _, t := range tris {
			for k := 0; k < 3; k++ {
				a, b := t[k], t[(k+1)%3]
				for _, e := range [2][2]uint32{{a, b}, {b, a}} {
					if locked[e[0]] {
						continue
					}
					q := quadrics[e[0]].add(quadrics[e[1]])
					candidates = append(candidates, collapse{from: e[0], to: e[1], cost: q.eval(positions[e[1]])})
				}
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].cost != candidates[j].cost {
				return candidates[i].cost < candidates[j].cost
			}
			if candidates[i].from != candidates[j].from {
				return candidates[i].from < candidates[j].from
			}
			return candidates[i].to < candidates[j].to
		})

		touched := make(map[uint32]bool)
		target := make(map[uint32]uint32)
		remaining := len(tris)
		for _, c := range candidates {
			if c.cost > limit || remaining*3 <= targetIndexCount {
				break
			}
			if touched[c.from] || touched[c.to] {
				continue
			}
			if flips(tris, adj[c.from], c.from, c.to, positions) {
				continue
			}
			target[c.from] = c.to
			quadrics[c.to] = quadrics[c.to].add(quadrics[c.from])
			worst = max(worst, c.cost)
			for _, ti := range adj[c.from] {
				t := tris[ti]
				if t[0] == c.to || t[1] == c.to || t[2] == c.to {
					remaining--
				}
				for _, v := range t {
					touched[v] = true
				}
			}
		}
		if len(target) == 0 {
			break
		}

		kept := tris[:0]
		for _, t := range tris {
			for k, v := range t {
				if to, ok := target[v]; ok {
					t[k] = to
				}
			}
			if t[0] != t[1] && t[1] != t[2] && t[0] != t[2] {
				kept = append(kept, t)
			}
		}
		tris = kept
	}
	return flatten(tris), float32(math.Sqrt(worst))
}

// flips reports whether moving from onto to would invert or degenerate a triangle that survives the move.
func flips(tris [][3]uint32, incident []int, from, to uint32, positions [][3]float32) bool {
	for _, ti := range incident {
		t := tris[ti]
		if t[0] == to || t[1] == to || t[2] == to {
			continue
		}
		before := triangleNormal(positions[t[0]], positions[t[1]], positions[t[2]])
		moved := t
		for k := range moved {
			if moved[k] == from {
				moved[k] = to
			}
		}
		after := triangleNormal(positions[moved[0]], positions[moved[1]], positions[moved[2]])
		if after.Len() == 0 || before.Dot(after) <= 0 {
			return true
		}
	}
	return false
}

func triangleNormal(a, b, c [3]float32) mgl32.Vec3 {
	va := mgl32.Vec3(a)
	return mgl32.Vec3(b).Sub(va).Cross(mgl32.Vec3(c).Sub(va))
}

// lockedVertices marks vertices that sit on an open border or share their position with another vertex.
func lockedVertices(tris [][3]uint32, positions [][3]float32) []bool {
	posID := make([]uint32, len(positions))
	ids := make(map[[3]float32]uint32, len(positions))
	shared := make(map[uint32]int)
	for v, p := range positions {
		id, ok := ids[p]
		if !ok {
			id = uint32(len(ids))
			ids[p] = id
		}
		posID[v] = id
		shared[id]++
	}

	edges := make(map[[2]uint32]int)
	for _, t := range tris {
		for k := 0; k < 3; k++ {
			a, b := posID[t[k]], posID[t[(k+1)%3]]
			edges[[2]uint32{min(a, b), max(a, b)}]++
		}
	}
	border := make(map[uint32]bool)
	for e, n := range edges {
		if n == 1 {
			border[e[0]] = true
			border[e[1]] = true
		}
	}

	locked := make([]bool, len(positions))
	for v := range positions {
		id := posID[v]
		locked[v] = shared[id] > 1 || border[id]
	}
	return locked
}

func flatten(tris [][3]uint32) []uint32 {
	out := make([]uint32, 0, len(tris)*3)
	for _, t := range tris {
		out = append(out, t[0], t[1], t[2])
	}
	return out
}
