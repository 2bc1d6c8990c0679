package models

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MaskVolume represents a labelled 3D volume together with the affine that
// maps array indices (i, j, k) to physical coordinates.
type MaskVolume struct {
	// Path is the file the volume was read from, if any
	Path string

	// Data holds the label values with x varying fastest, then y, then z
	Data []float32

	// Dims is the array shape (x, y, z); z is the through-plane axis
	Dims [3]int

	// Affine is the 4x4 index-to-world transform
	Affine *mat.Dense

	// Spacing is the voxel size along each array axis in mm
	Spacing [3]float64
}

// Index returns the flat offset of voxel (x, y, z).
func (v *MaskVolume) Index(x, y, z int) int {
	return z*v.Dims[0]*v.Dims[1] + y*v.Dims[0] + x
}

// At returns the label at voxel (x, y, z).
func (v *MaskVolume) At(x, y, z int) float32 {
	return v.Data[v.Index(x, y, z)]
}

// Binary converts the volume into a foreground mask (label > 0).
func (v *MaskVolume) Binary() *BinaryMask {
	bits := make([]bool, len(v.Data))
	for i, val := range v.Data {
		bits[i] = val > 0
	}
	return &BinaryMask{Bits: bits, Width: v.Dims[0], Height: v.Dims[1], Depth: v.Dims[2]}
}

// BinaryMask is a foreground/background volume with the same layout as
// MaskVolume.Data.
type BinaryMask struct {
	Bits                 []bool
	Width, Height, Depth int
}

// Plane extracts plane z as a row-major Width x Height grid.
func (b *BinaryMask) Plane(z int) (*Plane, error) {
	if z < 0 || z >= b.Depth {
		return nil, fmt.Errorf("plane %d out of range [0, %d)", z, b.Depth)
	}
	size := b.Width * b.Height
	start := z * size
	pix := make([]bool, size)
	copy(pix, b.Bits[start:start+size])
	return &Plane{Pix: pix, Width: b.Width, Height: b.Height}, nil
}

// Plane is one 2D binary slice of a mask; Pix[y*Width+x].
type Plane struct {
	Pix           []bool
	Width, Height int
}

// At reports whether (x, y) is foreground. Out-of-bounds is background.
func (p *Plane) At(x, y int) bool {
	if x < 0 || y < 0 || x >= p.Width || y >= p.Height {
		return false
	}
	return p.Pix[y*p.Width+x]
}

// Count returns the number of foreground pixels.
func (p *Plane) Count() int {
	n := 0
	for _, on := range p.Pix {
		if on {
			n++
		}
	}
	return n
}

// AxisCode names the physical direction an array axis increases toward.
type AxisCode byte

const (
	AxisRight     AxisCode = 'R'
	AxisLeft      AxisCode = 'L'
	AxisAnterior  AxisCode = 'A'
	AxisPosterior AxisCode = 'P'
	AxisSuperior  AxisCode = 'S'
	AxisInferior  AxisCode = 'I'
)

// CoordinateFrame is the axis-code summary of a volume's orientation, one
// code per array axis.
type CoordinateFrame [3]AxisCode

// String renders the frame as e.g. "RAS".
func (f CoordinateFrame) String() string {
	var sb strings.Builder
	for _, c := range f {
		if c == 0 {
			sb.WriteByte('?')
			continue
		}
		sb.WriteByte(byte(c))
	}
	return sb.String()
}

// Common frames.
var (
	FrameRAS = CoordinateFrame{AxisRight, AxisAnterior, AxisSuperior}
	FrameLPI = CoordinateFrame{AxisLeft, AxisPosterior, AxisInferior}
)
