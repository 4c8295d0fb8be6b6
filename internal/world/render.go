package world

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/talgya/planetgrid/internal/geom"
)

const renderBands = 20

var markerColor = color.RGBA{R: 255, G: 0, B: 255, A: 255}

// PlateColor returns a display colour for a plate: warm or green shades for
// continental crust, blues for oceanic crust, darker with higher index.
func PlateColor(p *Plate, plateCount int) color.RGBA {
	shade := uint8(255)
	if plateCount > 1 {
		shade = uint8(255 - 200*p.Index/(plateCount-1))
	}
	switch {
	case !p.Continental:
		return color.RGBA{B: shade, A: 255}
	case p.Major:
		return color.RGBA{R: shade, G: 255 - shade, A: 255}
	default:
		return color.RGBA{G: shade, A: 255}
	}
}

// RenderPlates draws an equirectangular plate map, north at the top and
// longitude 0 at the left edge, with each plate centre marked. Rows are
// rendered in parallel bands.
func RenderPlates(g *Grid, width, height int) *image.RGBA {
	g.mustBeGenerated()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	plates := g.Plates()
	palette := make([]color.RGBA, len(plates))
	for i := range plates {
		palette[i] = PlateColor(&plates[i], len(plates))
	}

	band := (height + renderBands - 1) / renderBands
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += band {
		wg.Add(1)
		go func(y0 int) {
			defer wg.Done()
			for y := y0; y < y0+band && y < height; y++ {
				lat := math.Pi/2 - math.Pi*(float64(y)+0.5)/float64(height)
				for x := 0; x < width; x++ {
					lon := 2 * math.Pi * (float64(x) + 0.5) / float64(width)
					c := g.LocateLatLon(lat, lon)
					if c.Plate >= 0 {
						img.SetRGBA(x, y, palette[c.Plate])
					}
				}
			}
		}(y0)
	}
	wg.Wait()

	marker := max(1, min(width, height)/200)
	for i := range plates {
		lat, lon, _ := geom.ToSpherical(plates[i].Center.Centroid)
		cx := int(lon / (2 * math.Pi) * float64(width))
		cy := int((math.Pi/2 - lat) / math.Pi * float64(height))
		for dy := -marker; dy <= marker; dy++ {
			for dx := -marker; dx <= marker; dx++ {
				x, y := cx+dx, cy+dy
				if x >= 0 && x < width && y >= 0 && y < height {
					img.SetRGBA(x, y, markerColor)
				}
			}
		}
	}
	return img
}
