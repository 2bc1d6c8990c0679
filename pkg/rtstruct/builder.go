// Package rtstruct converts a binary mask aligned with a CT series into a DICOM
// RT Structure Set and reads such files back.
package rtstruct

import (
	"errors"
	"fmt"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/contour"
	"rtstructgen/pkg/dicommeta"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
)

// Builder creates structure sets for one named structure.
type Builder struct {
	name   string
	color  [3]int
	logger *zap.Logger
}

// NewBuilder returns a Builder for the structure name drawn in color.
func NewBuilder(name string, color [3]int, logger *zap.Logger) *Builder {
	return &Builder{name: name, color: color, logger: logging.OrNop(logger)}
}

// Build derives one contour per foreground slice, encodes the structure set
// and writes it atomically to path. Nothing is written when any step fails.
func (b *Builder) Build(series *models.Series, mask *models.MaskVolume, path string) (*models.StructureSet, error) {
	contours, err := b.Contours(series, mask)
	if err != nil {
		return nil, err
	}

	ss := &models.StructureSet{
		SOPInstanceUID:    dicommeta.NewUID(),
		SeriesInstanceUID: dicommeta.NewUID(),
		StructureName:     b.name,
		Color:             b.color,
		Contours:          contours,
		Series:            series,
	}
	data, err := Encode(ss)
	if err != nil {
		return nil, fault.Wrap(fault.ContourBuildFailure, err, "(encode)")
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}

	b.logger.Debug("structure set written",
		zap.String("path", path),
		zap.String("structure", b.name),
		zap.Int("contours", len(contours)),
		zap.Int("bytes", len(data)))
	return ss, nil
}

// Contours traces the mask plane that matches each slice of series, in
// ascending slice order. Planes without foreground produce no contour.
func (b *Builder) Contours(series *models.Series, mask *models.MaskVolume) ([]models.Contour, error) {
	binary := mask.Binary()
	var out []models.Contour
	for i, rec := range series.Slices {
		plane, err := binary.Plane(series.MaskPlaneIndex(i))
		if err != nil {
			return nil, fault.Wrap(fault.ContourBuildFailure, err, "(slice %d)", i)
		}
		if plane.Count() == 0 {
			continue
		}

		poly, sel, err := contour.TraceLargest(plane)
		if err != nil {
			if errors.Is(err, contour.ErrEmptyPlane) {
				continue
			}
			return nil, fault.Wrap(fault.ContourBuildFailure, err, "(slice %d, z=%.2f)", i, rec.Position.Z)
		}
		if sel.Dropped > 0 {
			b.logger.Debug("dropping smaller components",
				zap.Int("slice", i),
				zap.Float64("z", rec.Position.Z),
				zap.Int("components", sel.Components-1),
				zap.Int("pixels", sel.Dropped),
				zap.Int("kept", sel.Size))
		}

		pts := make([]r3.Vec, len(poly))
		for k, p := range poly {
			pts[k] = rec.PixelToPatient(float64(p.X), float64(p.Y))
		}
		out = append(out, models.Contour{
			SliceIndex:     i,
			SOPInstanceUID: rec.SOPInstanceUID,
			SOPClassUID:    rec.SOPClassUID,
			Points:         pts,
		})
	}
	return out, nil
}
