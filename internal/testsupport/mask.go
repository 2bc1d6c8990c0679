package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/nifti"
)

// MaskOption customizes a synthetic mask.
type MaskOption func(*models.MaskVolume)

// WithAffine replaces the default RAS affine.
func WithAffine(values ...float64) MaskOption {
	return func(v *models.MaskVolume) { v.Affine = mat.NewDense(4, 4, values) }
}

// RASAffine is an axis-aligned RAS affine with 0.8 x 0.8 x 2.5 mm voxels.
func RASAffine() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		0.8, 0, 0, -200,
		0, 0.8, 0, -200,
		0, 0, 2.5, -50,
		0, 0, 0, 1,
	})
}

// LPIAffine mirrors every axis of RASAffine.
func LPIAffine() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		-0.8, 0, 0, 200,
		0, -0.8, 0, 200,
		0, 0, -2.5, 50,
		0, 0, 0, 1,
	})
}

// NewMask builds an in-memory mask whose voxel (x, y, z) is 1 when fill
// returns true. A nil fill leaves the mask empty.
func NewMask(dims [3]int, fill func(x, y, z int) bool, opts ...MaskOption) *models.MaskVolume {
	vol := &models.MaskVolume{
		Data:    make([]float32, dims[0]*dims[1]*dims[2]),
		Dims:    dims,
		Affine:  RASAffine(),
		Spacing: [3]float64{0.8, 0.8, 2.5},
	}
	if fill != nil {
		for z := 0; z < dims[2]; z++ {
			for y := 0; y < dims[1]; y++ {
				for x := 0; x < dims[0]; x++ {
					if fill(x, y, z) {
						vol.Data[vol.Index(x, y, z)] = 1
					}
				}
			}
		}
	}
	for _, opt := range opts {
		opt(vol)
	}
	return vol
}

// WriteMask writes NewMask(dims, fill, opts...) to path as NIfTI.
func WriteMask(t testing.TB, path string, dims [3]int, fill func(x, y, z int) bool, opts ...MaskOption) *models.MaskVolume {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	vol := NewMask(dims, fill, opts...)
	if err := nifti.WriteFile(path, vol); err != nil {
		t.Fatalf("write mask %s: %v", path, err)
	}
	vol.Path = path
	return vol
}

// Planes returns a fill function that sets a centred square of side size on
// each listed plane.
func Planes(width, height, size int, planes ...int) func(x, y, z int) bool {
	set := make(map[int]bool, len(planes))
	for _, p := range planes {
		set[p] = true
	}
	x0, y0 := (width-size)/2, (height-size)/2
	return func(x, y, z int) bool {
		return set[z] && x >= x0 && x < x0+size && y >= y0 && y < y0+size
	}
}
