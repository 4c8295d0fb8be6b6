// Package world provides the geodesic planet grid: a recursively subdivided
// icosahedron used as a spatial index over the sphere, plus the tectonic
// plates assigned over it.
package world

import "github.com/go-gl/mathgl/mgl64"

// NoPlate marks a cell that has not been labelled yet.
const NoPlate = -1

// Cell is one leaf-level area of the planet surface.
type Cell struct {
	ID       uint32     `json:"id"`
	Centroid mgl64.Vec3 `json:"centroid"` // On the sphere, fixed at construction

	// Plate indexes Grid.Plates. Written once per Generate by labelling.
	Plate int32 `json:"plate"`

	// Elevation from -1.0 (abyssal) to 1.0 (peak), set by the relief pass.
	Elevation float64 `json:"elevation"`

	leaf int32 // Index of the owning leaf node within its face
}

// Plate is one tectonic plate, defined by the cell it was seeded at.
type Plate struct {
	Index       int   `json:"index"`
	Major       bool  `json:"major"`
	Continental bool  `json:"continental"`
	Center      *Cell `json:"-"`
}

// Tier returns "major" or "minor".
func (p *Plate) Tier() string {
	if p.Major {
		return "major"
	}
	return "minor"
}

// Crust returns "continental" or "oceanic".
func (p *Plate) Crust() string {
	if p.Continental {
		return "continental"
	}
	return "oceanic"
}
