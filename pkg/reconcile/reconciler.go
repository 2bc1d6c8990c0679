// Package reconcile checks that a validated series and a mask volume describe
// a compatible spatial frame before any contour is built.
package reconcile

import (
	"go.uber.org/zap"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
)

// SupportedFrames lists the mask frames the builder knows how to place.
var SupportedFrames = []models.CoordinateFrame{models.FrameRAS, models.FrameLPI}

// Reconciler confirms gross geometric compatibility between a Series and a
// MaskVolume.
//
// It checks the frame family, the through-plane slice count and the in-plane
// grid size. It does NOT compare the DICOM row/column cosines against the
// affine's in-plane vectors, so a rotated or sheared acquisition with matching
// counts passes. Contour placement is only as correct as this check.
type Reconciler struct {
	logger *zap.Logger
}

// NewReconciler creates a Reconciler. A nil logger disables logging.
func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logging.OrNop(logger)}
}

// Reconcile returns nil when series and mask are compatible.
func (r *Reconciler) Reconcile(series *models.Series, mask *models.MaskVolume) error {
	frame, err := AxisCodes(mask.Affine)
	if err != nil {
		return fault.Wrap(fault.UnsupportedOrientation, err, "(%s)", mask.Path)
	}
	if !supported(frame) {
		return fault.New(fault.UnsupportedOrientation, "(%s)", frame)
	}

	depth := mask.Dims[2]
	if depth != series.Len() || series.Len() == 0 {
		return fault.New(fault.SliceCountMismatch, "(%d, %d)", series.Len(), depth)
	}

	first := series.Slices[0]
	if first.Rows > 0 && first.Columns > 0 && (mask.Dims[0] != first.Columns || mask.Dims[1] != first.Rows) {
		return fault.New(fault.GridMismatch, "(series %dx%d, mask %dx%d)",
			first.Columns, first.Rows, mask.Dims[0], mask.Dims[1])
	}

	r.logger.Debug("orientation reconciled without in-plane rotation check",
		zap.String("frame", frame.String()),
		zap.String("series", series.SeriesInstanceUID),
		zap.Int("slices", series.Len()))
	return nil
}

func supported(frame models.CoordinateFrame) bool {
	for _, f := range SupportedFrames {
		if f == frame {
			return true
		}
	}
	return false
}
