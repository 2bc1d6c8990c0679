package external

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/batch"
	"rtstructgen/pkg/fault"
)

const stageExternal = "external"

// CaseFunc segments each case's slice directory into the directory of its
// mask path. When the configured mask file name differs from what the engine
// writes, the result is renamed into place.
func (s *Segmenter) CaseFunc(structure string) batch.CaseFunc {
	return func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		start := time.Now()
		if err := requireDir(c.SliceDir); err != nil {
			return result(c, "", err, start)
		}
		mask, err := s.Run(ctx, c.SliceDir, filepath.Dir(c.MaskPath), structure)
		if err != nil {
			return result(c, "", err, start)
		}
		if mask != c.MaskPath {
			if err := os.Rename(mask, c.MaskPath); err != nil {
				return result(c, "", fault.Wrap(fault.SegmentationFailed, err, "(rename)"), start)
			}
		}
		return result(c, c.MaskPath, nil, start)
	}
}

// VolumePath is where a converted volume for one case is written:
// "{root}/{id}/{id}_{phase}.nii".
func VolumePath(root, patientID, phase string) string {
	return filepath.Join(root, patientID, patientID+"_"+phase+".nii")
}

// CaseFunc converts each case's slice directory into VolumePath(outRoot, ...).
func (c *Converter) CaseFunc(outRoot string) batch.CaseFunc {
	return func(ctx context.Context, pc models.PatientCase) models.ProcessingResult {
		start := time.Now()
		if err := requireDir(pc.SliceDir); err != nil {
			return result(pc, "", err, start)
		}
		path := VolumePath(outRoot, pc.PatientID, pc.Phase)
		skipped, err := c.Run(ctx, pc.SliceDir, path)
		res := result(pc, path, err, start)
		if skipped {
			res.Message = "already converted"
		}
		return res
	}
}

func requireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fault.New(fault.PathNotFound, "(%s)", path)
		}
		return fault.Wrap(fault.PathNotFound, err, "(%s)", path)
	}
	if !fi.IsDir() {
		return fault.New(fault.PathNotFound, "(%s is not a directory)", path)
	}
	return nil
}

func result(c models.PatientCase, output string, err error, start time.Time) models.ProcessingResult {
	res := models.ProcessingResult{
		PatientID: c.PatientID,
		Phase:     c.Phase,
		Duration:  time.Since(start),
	}
	if err != nil {
		err = fault.WithStage(err, stageExternal)
		res.Kind = fault.KindOf(err)
		res.Stage = fault.StageOf(err)
		res.Message = err.Error()
		return res
	}
	res.Success = true
	res.OutputPath = output
	return res
}
