package barcode

import (
	"image"
	"math"

	gozxing "github.com/makiuchi-d/gozxing"
)

// symbolBox estimates the printed extent of a decoded symbol.
//
// gozxing reports points inside the symbol: the finder pattern centres of a
// QR code and the scan row of a linear code. The hull of those points is
// grown to the symbol edges found in the binarized matrix. Data Matrix and
// Aztec report corner points, so their hull is used as is.
func symbolBox(m *gozxing.BitMatrix, f Format, pts []gozxing.ResultPoint, bounds image.Rectangle) Box {
	local := image.Rect(0, 0, bounds.Dx(), bounds.Dy())
	box := boxFromPoints(pts, local)

	var valid []gozxing.ResultPoint
	for _, p := range pts {
		if p != nil {
			valid = append(valid, p)
		}
	}
	if m != nil && len(valid) > 0 {
		switch {
		case f == FormatQR && len(valid) >= 3:
			box = growQR(m, valid[:3], box)
		case f.Linear():
			box = growLinear(m, box)
		}
	}

	r := box.Rect().Intersect(local)
	if r.Empty() {
		r = image.Rect(0, 0, 1, 1)
	}
	r = r.Add(bounds.Min)
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// growQR pads the hull of the three finder centres out to the outer edge of
// the finder patterns.
func growQR(m *gozxing.BitMatrix, finders []gozxing.ResultPoint, box Box) Box {
	pad := 0
	for _, p := range finders {
		x, y := int(p.GetX()), int(p.GetY())
		for _, dir := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			pad = max(pad, finderEdge(m, x, y, dir[0], dir[1]))
		}
	}
	// A finder centre sits 3.5 modules in from the symbol edge; the smallest
	// symbol is 21 modules wide.
	side := math.Hypot(finders[1].GetX()-finders[2].GetX(), finders[1].GetY()-finders[2].GetY())
	if pad == 0 || float64(pad) > side/2 {
		pad = int(math.Ceil(side * 3.5 / 14))
	}
	r := box.Rect().Inset(-pad)
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// finderEdge walks from a finder centre across the dark core, the light ring
// and the dark outer ring, and returns the distance to the last dark pixel of
// the outer ring. It returns 0 when the walk does not match a finder pattern.
func finderEdge(m *gozxing.BitMatrix, x, y, dx, dy int) int {
	w, h := m.GetWidth(), m.GetHeight()
	if x < 0 || y < 0 || x >= w || y >= h || !m.Get(x, y) {
		return 0
	}
	dark := true
	transitions, last := 0, 0
	for d := 1; ; d++ {
		px, py := x+d*dx, y+d*dy
		if px < 0 || py < 0 || px >= w || py >= h {
			if transitions == 2 {
				return last
			}
			return 0
		}
		v := m.Get(px, py)
		if v != dark {
			dark = v
			transitions++
			if transitions == 3 {
				return last
			}
		}
		if v {
			last = d
		}
	}
}

// growLinear extends the scan row of a linear code out to the first and
// last bar, then across every parallel row that repeats the bar pattern.
func growLinear(m *gozxing.BitMatrix, box Box) Box {
	if box.H > box.W {
		// Decoded from the rotated image; the scan line is vertical.
		g := growLinearOn(transposed{m}, Box{X: box.Y, Y: box.X, W: box.H, H: box.W})
		return Box{X: g.Y, Y: g.X, W: g.H, H: g.W}
	}
	return growLinearOn(m, box)
}

// bits is the read-only view of a binarized image the linear scans need.
type bits interface {
	Get(x, y int) bool
	GetWidth() int
	GetHeight() int
}

type transposed struct{ m *gozxing.BitMatrix }

func (t transposed) Get(x, y int) bool { return t.m.Get(y, x) }
func (t transposed) GetWidth() int     { return t.m.GetHeight() }
func (t transposed) GetHeight() int    { return t.m.GetWidth() }

func growLinearOn(m bits, box Box) Box {
	y := box.Y + box.H/2
	x0, x1 := box.X, box.X+box.W-1

	quiet := max(6*narrowestRun(m, x0, x1, y), 3)
	x0 = extendRow(m, x0, y, -1, quiet)
	x1 = extendRow(m, x1, y, 1, quiet)

	y0, y1 := y, y
	for y0 > 0 && rowMatches(m, x0, x1, y, y0-1) {
		y0--
	}
	for y1 < m.GetHeight()-1 && rowMatches(m, x0, x1, y, y1+1) {
		y1++
	}
	return Box{X: x0, Y: y0, W: x1 - x0 + 1, H: y1 - y0 + 1}
}

// narrowestRun returns the shortest complete run of equal pixels on row y
// between x0 and x1, a stand-in for the module width.
func narrowestRun(m bits, x0, x1, y int) int {
	best, run := 0, 0
	first := true
	for x := x0 + 1; x <= x1; x++ {
		run++
		if m.Get(x, y) != m.Get(x-1, y) {
			if !first && (best == 0 || run < best) {
				best = run
			}
			first = false
			run = 0
		}
	}
	return max(best, 1)
}

// extendRow walks from x in direction dir and returns the last dark pixel
// before a light run of at least quiet pixels or the image edge.
func extendRow(m bits, x, y, dir, quiet int) int {
	last, light := x, 0
	for px := x + dir; px >= 0 && px < m.GetWidth(); px += dir {
		if m.Get(px, y) {
			last, light = px, 0
			continue
		}
		light++
		if light >= quiet {
			break
		}
	}
	return last
}

// rowMatches reports whether row y agrees with the reference row on at least
// nine in ten pixels between x0 and x1.
func rowMatches(m bits, x0, x1, ref, y int) bool {
	mismatches := 0
	for x := x0; x <= x1; x++ {
		if m.Get(x, y) != m.Get(x, ref) {
			mismatches++
		}
	}
	return mismatches*10 <= x1-x0+1
}
