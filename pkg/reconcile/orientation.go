package reconcile

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"rtstructgen/internal/models"
)

var (
	positiveCodes = [3]models.AxisCode{models.AxisRight, models.AxisAnterior, models.AxisSuperior}
	negativeCodes = [3]models.AxisCode{models.AxisLeft, models.AxisPosterior, models.AxisInferior}
)

// AxisCodes derives the coordinate frame of a 4x4 affine. It follows the
// usual aff2axcodes procedure: strip voxel sizes, take the closest orthogonal
// matrix, then repeatedly assign the largest remaining component.
func AxisCodes(affine mat.Matrix) (models.CoordinateFrame, error) {
	var frame models.CoordinateFrame
	if affine == nil {
		return frame, fmt.Errorf("affine is nil")
	}
	r, c := affine.Dims()
	if r < 3 || c < 3 {
		return frame, fmt.Errorf("affine is %dx%d, need at least 3x3", r, c)
	}

	rzs := mat.NewDense(3, 3, nil)
	for j := 0; j < 3; j++ {
		var norm float64
		for i := 0; i < 3; i++ {
			v := affine.At(i, j)
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return frame, fmt.Errorf("affine column %d has zero length", j)
		}
		for i := 0; i < 3; i++ {
			rzs.Set(i, j, affine.At(i, j)/norm)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(rzs, mat.SVDFull); !ok {
		return frame, fmt.Errorf("affine SVD did not converge")
	}
	values := svd.Values(nil)
	if values[len(values)-1] < 1e-6*values[0] {
		return frame, fmt.Errorf("affine is singular")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var ortho mat.Dense
	ortho.Mul(&u, v.T())

	work := mat.DenseCopyOf(&ortho)
	for n := 0; n < 3; n++ {
		bestIn, bestOut, best := -1, -1, 0.0
		for out := 0; out < 3; out++ {
			for in := 0; in < 3; in++ {
				if a := math.Abs(work.At(out, in)); a > best {
					best, bestIn, bestOut = a, in, out
				}
			}
		}
		if bestIn < 0 {
			return frame, fmt.Errorf("affine has no dominant axis")
		}
		if work.At(bestOut, bestIn) < 0 {
			frame[bestIn] = negativeCodes[bestOut]
		} else {
			frame[bestIn] = positiveCodes[bestOut]
		}
		for k := 0; k < 3; k++ {
			work.Set(bestOut, k, 0)
			work.Set(k, bestIn, 0)
		}
	}
	return frame, nil
}
