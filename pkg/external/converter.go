package external

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"rtstructgen/pkg/config"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
)

// Converter turns a slice directory into a single NIfTI volume.
type Converter struct {
	cmd    command
	logger *zap.Logger
}

// NewConverter returns a runner for dcm2niix unless overridden.
func NewConverter(logger *zap.Logger, opts ...Option) *Converter {
	return &Converter{
		cmd: newCommand("dcm2niix",
			[]string{"-z", "n", "-f", "{name}", "-o", "{output_dir}", "{input}"}, opts),
		logger: logging.OrNop(logger),
	}
}

// ConverterFromConfig reads the conversion section of cfg.
func ConverterFromConfig(cfg *config.Config, logger *zap.Logger) *Converter {
	return NewConverter(logger, WithBinary(cfg.Conversion.Command), WithArgs(cfg.Conversion.Args...))
}

// Run converts sliceDir into outPath. An existing outPath is left alone and
// reported as skipped.
func (c *Converter) Run(ctx context.Context, sliceDir, outPath string) (skipped bool, err error) {
	if _, err := os.Stat(outPath); err == nil {
		c.logger.Debug("volume already converted", zap.String("path", outPath))
		return true, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", outPath, err)
	}

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create conversion output: %w", err)
	}

	_, runErr := c.cmd.run(ctx, c.logger, map[string]string{
		"input":      sliceDir,
		"output_dir": dir,
		"name":       volumeStem(outPath),
		"structure":  "",
	})
	if runErr != nil {
		if ctx.Err() != nil {
			return false, fault.Wrap(fault.Cancelled, ctx.Err(), "(conversion %s)", sliceDir)
		}
		return false, fault.Wrap(fault.ConversionFailed, runErr, "(%s)", sliceDir)
	}
	if _, err := os.Stat(outPath); err != nil {
		return false, fault.New(fault.ConversionFailed, "(no %s written)", filepath.Base(outPath))
	}
	return false, nil
}

// volumeStem strips .nii or .nii.gz from the file name.
func volumeStem(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".nii.gz", ".nii"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
