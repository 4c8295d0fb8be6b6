package world

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/planetgrid/internal/geom"
)

// apexLat is the latitude of the icosahedron's upper vertex ring.
var apexLat = math.Atan(0.5)

const faceCount = 20

type nodeKind uint8

const (
	kindBranch nodeKind = iota // Owns four child nodes
	kindLeaf                   // Owns one cell
)

// node is one triangle in a face's subtree. A branch's children occupy
// nodes[first:first+4]; a leaf's cell is cells[first].
type node struct {
	verts [3]mgl64.Vec3
	first int32
	kind  nodeKind
}

func (n *node) centroid() mgl64.Vec3 {
	return n.verts[0].Add(n.verts[1]).Add(n.verts[2])
}

// face is the subtree under one icosahedron face, stored as an arena.
// nodes[0] is the face triangle itself and is always a branch.
type face struct {
	nodes []node
	cells []Cell
}

// root is the icosahedron: twenty faces covering the whole sphere.
type root struct {
	faces   [faceCount]*face
	offsets [faceCount + 1]int // First cell ID of each face, then the total
}

// icosahedronFaces returns the twenty faces in four bands of five: north
// cap, south cap, then the upward- and downward-pointing equatorial
// triangles. The upper ring sits at longitudes k·2π/5, the lower ring is
// offset by π/5.
func icosahedronFaces(radius float64) [faceCount][3]mgl64.Vec3 {
	const step = 2 * math.Pi / 5
	at := func(lat, lon float64) mgl64.Vec3 {
		return geom.ToCartesian(lat, lon, radius)
	}

	var tris [faceCount][3]mgl64.Vec3
	for i := 0; i < 5; i++ {
		k := float64(i)
		tris[i] = [3]mgl64.Vec3{
			at(math.Pi/2, 0),
			at(apexLat, k*step),
			at(apexLat, (k+1)*step),
		}
		tris[i+5] = [3]mgl64.Vec3{
			at(-math.Pi/2, 0),
			at(-apexLat, (k+1.5)*step),
			at(-apexLat, (k+0.5)*step),
		}
		tris[i+10] = [3]mgl64.Vec3{
			at(apexLat, k*step),
			at(-apexLat, (k-0.5)*step),
			at(-apexLat, (k+0.5)*step),
		}
		tris[i+15] = [3]mgl64.Vec3{
			at(apexLat, k*step),
			at(-apexLat, (k+0.5)*step),
			at(apexLat, (k+1)*step),
		}
	}
	return tris
}

// buildRoot constructs all twenty face subtrees concurrently, then numbers
// the cells face by face.
func buildRoot(cfg Config) *root {
	r := &root{}
	tris := icosahedronFaces(cfg.Radius)
	depth := cfg.LeafDepth()

	var wg sync.WaitGroup
	for i := range tris {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.faces[i] = buildFace(tris[i], cfg, depth)
		}(i)
	}
	wg.Wait()

	offset := 0
	for i, f := range r.faces {
		r.offsets[i] = offset
		for j := range f.cells {
			f.cells[j].ID = uint32(offset + j)
		}
		offset += len(f.cells)
	}
	r.offsets[faceCount] = offset
	return r
}

func buildFace(tri [3]mgl64.Vec3, cfg Config, depth int) *face {
	leaves := 1 << (2 * depth)
	f := &face{
		nodes: make([]node, 1, (4*leaves-1)/3),
		cells: make([]Cell, 0, leaves),
	}
	f.nodes[0] = node{verts: tri, kind: kindBranch}
	f.subdivide(0, depth)
	f.project(cfg.Radius)
	return f
}

// subdivide splits nodes[idx] at its edge midpoints into three corner
// children and one centre child, levels times over. All twenty faces are
// given the same Config.LeafDepth, so the grid has uniform depth. Vertices
// stay on the flat face here and are projected afterwards.
func (f *face) subdivide(idx int32, levels int) {
	v := f.nodes[idx].verts
	half0 := geom.Midpoint(v[1], v[2])
	half1 := geom.Midpoint(v[0], v[2])
	half2 := geom.Midpoint(v[0], v[1])
	children := [4][3]mgl64.Vec3{
		{v[0], half2, half1},
		{v[1], half0, half2},
		{v[2], half1, half0},
		{half0, half1, half2},
	}

	kind := kindBranch
	if levels <= 1 {
		kind = kindLeaf
	}

	first := int32(len(f.nodes))
	f.nodes[idx].first = first
	for _, tri := range children {
		n := node{verts: tri, kind: kind}
		if kind == kindLeaf {
			n.first = int32(len(f.cells))
			f.cells = append(f.cells, Cell{Plate: NoPlate, leaf: int32(len(f.nodes))})
		}
		f.nodes = append(f.nodes, n)
	}

	if kind == kindBranch {
		for i := int32(0); i < 4; i++ {
			f.subdivide(first+i, levels-1)
		}
	}
}

// project moves every vertex onto the sphere and fixes each cell's centroid.
func (f *face) project(radius float64) {
	for i := range f.nodes {
		n := &f.nodes[i]
		for j := range n.verts {
			n.verts[j] = geom.ProjectOntoSphere(n.verts[j], radius)
		}
		if n.kind == kindLeaf {
			f.cells[n.first].Centroid = geom.TriangleCentroid(n.verts, radius)
		}
	}
}

// locate descends from the face triangle to the leaf containing dir.
func (f *face) locate(dir mgl64.Vec3) *Cell {
	idx := int32(0)
	for {
		n := &f.nodes[idx]
		if n.kind == kindLeaf {
			return &f.cells[n.first]
		}
		idx = f.childFor(n.first, dir)
	}
}

// childFor returns the first of the four children whose triangle the ray
// through dir hits. Rays through shared edges and vertices can miss every
// child, in which case the child with the nearest centroid wins.
func (f *face) childFor(first int32, dir mgl64.Vec3) int32 {
	for i := first; i < first+4; i++ {
		if geom.RayIntersectsTriangle(dir, f.nodes[i].verts) {
			return i
		}
	}
	best, bestDist := first, math.Inf(1)
	for i := first; i < first+4; i++ {
		if d := geom.AngularDistance(dir, f.nodes[i].centroid()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// forEachCell visits every leaf's cell in arena order.
func (f *face) forEachCell(fn func(*Cell)) {
	for i := range f.nodes {
		if n := &f.nodes[i]; n.kind == kindLeaf {
			fn(&f.cells[n.first])
		}
	}
}

// locate picks the face the ray through dir hits, falling back to the
// nearest face centroid, and descends into it.
func (r *root) locate(dir mgl64.Vec3) *Cell {
	for _, f := range r.faces {
		if geom.RayIntersectsTriangle(dir, f.nodes[0].verts) {
			return f.locate(dir)
		}
	}
	best, bestDist := r.faces[0], math.Inf(1)
	for _, f := range r.faces {
		if d := geom.AngularDistance(dir, f.nodes[0].centroid()); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best.locate(dir)
}

// forEachFace runs fn once per face, one goroutine per face, and returns
// when all have finished.
func (r *root) forEachFace(fn func(i int, f *face)) {
	var wg sync.WaitGroup
	for i, f := range r.faces {
		wg.Add(1)
		go func(i int, f *face) {
			defer wg.Done()
			fn(i, f)
		}(i, f)
	}
	wg.Wait()
}

// forEachCell visits every cell. Calls for cells of different faces run
// concurrently.
func (r *root) forEachCell(fn func(*Cell)) {
	r.forEachFace(func(_ int, f *face) {
		f.forEachCell(fn)
	})
}

// countCells counts leaves by traversal, one task per face.
func (r *root) countCells() int {
	var counts [faceCount]int
	r.forEachFace(func(i int, f *face) {
		f.forEachCell(func(*Cell) { counts[i]++ })
	})
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

// cell returns the cell with the given ID.
func (r *root) cell(id uint32) (*Cell, *face, bool) {
	if int(id) >= r.offsets[faceCount] {
		return nil, nil, false
	}
	for i := 0; i < faceCount; i++ {
		if int(id) < r.offsets[i+1] {
			f := r.faces[i]
			return &f.cells[int(id)-r.offsets[i]], f, true
		}
	}
	return nil, nil, false
}
