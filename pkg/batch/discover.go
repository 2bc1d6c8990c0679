package batch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/duke-git/lancet/v2/slice"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/config"
	"rtstructgen/pkg/fault"
)

// Roots are the three directories a batch run works on.
type Roots struct {
	SliceRoot  string
	MaskRoot   string
	OutputRoot string
}

// RootsFromConfig reads the paths section of cfg.
func RootsFromConfig(cfg *config.Config) Roots {
	return Roots{
		SliceRoot:  cfg.Paths.SliceRoot,
		MaskRoot:   cfg.Paths.MaskRoot,
		OutputRoot: cfg.Paths.OutputRoot,
	}
}

// Layout names the per-case files below the roots.
type Layout struct {
	Phases    []string
	MaskFile  string
	Suffix    string
	Extension string
}

// LayoutFromConfig reads the structure and output sections of cfg.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		Phases:    cfg.Structure.Phases,
		MaskFile:  cfg.MaskFileName(),
		Suffix:    cfg.Output.Suffix,
		Extension: cfg.Output.Extension,
	}
}

// OutputName returns "{id}_{phase}_{suffix}{ext}".
func (l Layout) OutputName(patientID, phase string) string {
	return fmt.Sprintf("%s_%s_%s%s", patientID, phase, l.Suffix, l.Extension)
}

// Discover lists one case per patient directory and phase. Patient
// directories are the entries of the slice root whose names are all digits,
// in name order. Input paths are not checked here.
func Discover(roots Roots, layout Layout) ([]models.PatientCase, error) {
	entries, err := os.ReadDir(roots.SliceRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.PathNotFound, "(slice root %s)", roots.SliceRoot)
		}
		return nil, fmt.Errorf("list slice root: %w", err)
	}

	patients := slice.Filter(entries, func(_ int, e fs.DirEntry) bool {
		return e.IsDir() && isPatientID(e.Name())
	})

	cases := make([]models.PatientCase, 0, len(patients)*len(layout.Phases))
	for _, p := range patients {
		id := p.Name()
		for _, phase := range layout.Phases {
			cases = append(cases, models.PatientCase{
				PatientID:  id,
				Phase:      phase,
				SliceDir:   filepath.Join(roots.SliceRoot, id, phase),
				MaskPath:   filepath.Join(roots.MaskRoot, id, phase, layout.MaskFile),
				OutputPath: filepath.Join(roots.OutputRoot, layout.OutputName(id, phase)),
			})
		}
	}
	return cases, nil
}

func isPatientID(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
