// Package contour extracts closed planar polygons from binary mask planes.
package contour

import (
	"errors"
	"fmt"
	"math"

	"rtstructgen/internal/models"
)

var (
	// ErrEmptyPlane is returned for a plane without foreground.
	ErrEmptyPlane = errors.New("plane has no foreground")

	// ErrDegenerate is returned when the traced boundary does not enclose any
	// area.
	ErrDegenerate = errors.New("degenerate contour")
)

// Point is a pixel position: X is the column, Y the row.
type Point struct {
	X, Y int
}

func (p Point) add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Moore neighbourhood, clockwise on screen (y down) starting west.
var neighbours = [8]Point{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

func direction(d Point) int {
	for i, n := range neighbours {
		if n == d {
			return i
		}
	}
	return -1
}

// Trace returns the simplified outer boundary of the largest 8-connected
// foreground component of plane, as pixel-centre vertices without repeating
// the first one.
func Trace(plane *models.Plane) ([]Point, error) {
	poly, _, err := TraceLargest(plane)
	return poly, err
}

// TraceLargest is Trace that also reports which foreground was left out.
func TraceLargest(plane *models.Plane) ([]Point, Selection, error) {
	comp, sel := LargestComponent(plane)
	if sel.Size == 0 {
		return nil, sel, ErrEmptyPlane
	}

	boundary := mooreTrace(comp, sel.Size)
	poly := Simplify(boundary)
	if len(poly) < 3 {
		return nil, sel, fmt.Errorf("%w: %d vertices", ErrDegenerate, len(poly))
	}
	if math.Abs(Area(poly)) == 0 {
		return nil, sel, fmt.Errorf("%w: zero area", ErrDegenerate)
	}
	return poly, sel, nil
}

// Selection summarizes the components of a plane and the one kept.
type Selection struct {
	// Size is the pixel count of the kept component
	Size int

	// Components is the number of 8-connected components in the plane
	Components int

	// Dropped counts foreground pixels outside the kept component
	Dropped int
}

// LargestComponent returns a plane holding only the biggest 8-connected
// foreground component. Ties go to the component found first in raster order.
func LargestComponent(plane *models.Plane) (*models.Plane, Selection) {
	w, h := plane.Width, plane.Height
	labels := make([]int, w*h)
	best, bestSize, total := 0, 0, 0
	next := 0
	var queue []Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !plane.At(x, y) || labels[y*w+x] != 0 {
				continue
			}
			next++
			labels[y*w+x] = next
			size := 0
			queue = append(queue[:0], Point{x, y})
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				size++
				for _, d := range neighbours {
					q := p.add(d)
					if plane.At(q.X, q.Y) && labels[q.Y*w+q.X] == 0 {
						labels[q.Y*w+q.X] = next
						queue = append(queue, q)
					}
				}
			}
			total += size
			if size > bestSize {
				best, bestSize = next, size
			}
		}
	}

	sel := Selection{Size: bestSize, Components: next, Dropped: total - bestSize}
	out := &models.Plane{Pix: make([]bool, w*h), Width: w, Height: h}
	if bestSize == 0 {
		return out, sel
	}
	for i, l := range labels {
		out.Pix[i] = l == best
	}
	return out, sel
}

// mooreTrace walks the outer boundary clockwise, starting at the first
// foreground pixel in raster order. It stops when the walk is back at the start
// and about to repeat its first move.
func mooreTrace(plane *models.Plane, size int) []Point {
	var start Point
	found := false
	for y := 0; y < plane.Height && !found; y++ {
		for x := 0; x < plane.Width; x++ {
			if plane.At(x, y) {
				start, found = Point{x, y}, true
				break
			}
		}
	}

	pts := []Point{start}
	cur, back := start, start.add(neighbours[0])
	limit := 8*size + 8
	for i := 0; i < limit; i++ {
		next, nextBack, ok := step(plane, cur, back)
		if !ok {
			break
		}
		if cur == start && len(pts) > 1 && next == pts[1] {
			break
		}
		pts = append(pts, next)
		cur, back = next, nextBack
	}
	if len(pts) > 1 && pts[len(pts)-1] == start {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// step scans the neighbours of cur clockwise from back and returns the first
// foreground pixel along with the background pixel examined just before it.
func step(plane *models.Plane, cur, back Point) (Point, Point, bool) {
	from := direction(Point{back.X - cur.X, back.Y - cur.Y})
	for k := 1; k <= 8; k++ {
		d := (from + k) % 8
		cand := cur.add(neighbours[d])
		if plane.At(cand.X, cand.Y) {
			prev := cur.add(neighbours[(from+k-1)%8])
			return cand, prev, true
		}
	}
	return Point{}, Point{}, false
}

// Simplify drops repeated vertices and vertices lying on a straight line
// between their neighbours. The polygon is treated as closed.
func Simplify(pts []Point) []Point {
	out := append([]Point(nil), pts...)
	for changed := true; changed && len(out) >= 3; {
		changed = false
		for i := 0; i < len(out) && len(out) >= 3; i++ {
			prev := out[(i+len(out)-1)%len(out)]
			cur := out[i]
			next := out[(i+1)%len(out)]
			if cur == prev || cross(prev, cur, next) == 0 {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	if len(out) == 2 && out[0] == out[1] {
		out = out[:1]
	}
	return out
}

func cross(a, b, c Point) int {
	return (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
}

// Area is the signed shoelace area of a closed polygon in pixel units.
func Area(pts []Point) float64 {
	var sum int
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return float64(sum) / 2
}
