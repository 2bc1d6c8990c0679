package testsupport

import (
	"path/filepath"
	"testing"

	"rtstructgen/pkg/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config with slice, mask and output roots under a fresh
// temp directory and a small worker pool.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.SliceRoot = filepath.Join(base, "slices")
	cfg.Paths.MaskRoot = filepath.Join(base, "masks")
	cfg.Paths.OutputRoot = filepath.Join(base, "output")
	cfg.Processing.NumWorkers = 2
	cfg.Log.Level = "debug"

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithPhases overrides the processed phases.
func WithPhases(phases ...string) ConfigOption {
	return func(c *config.Config) { c.Structure.Phases = phases }
}

// WithWorkers sets the pool size.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) { c.Processing.NumWorkers = n }
}

// CaseDirs returns the slice directory and mask path of one patient-phase
// under cfg's roots.
func CaseDirs(cfg *config.Config, patientID, phase string) (sliceDir, maskPath string) {
	sliceDir = filepath.Join(cfg.Paths.SliceRoot, patientID, phase)
	maskPath = filepath.Join(cfg.Paths.MaskRoot, patientID, phase, cfg.MaskFileName())
	return sliceDir, maskPath
}
