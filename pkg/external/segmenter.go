package external

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"rtstructgen/pkg/config"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
)

// Segmenter runs the segmentation engine for one series directory.
type Segmenter struct {
	cmd    command
	logger *zap.Logger
}

// NewSegmenter returns a runner for TotalSegmentator unless overridden.
func NewSegmenter(logger *zap.Logger, opts ...Option) *Segmenter {
	return &Segmenter{
		cmd: newCommand("TotalSegmentator",
			[]string{"-i", "{input}", "-o", "{output_dir}", "--roi_subset", "{structure}"}, opts),
		logger: logging.OrNop(logger),
	}
}

// SegmenterFromConfig reads the segmentation section of cfg.
func SegmenterFromConfig(cfg *config.Config, logger *zap.Logger) *Segmenter {
	return NewSegmenter(logger, WithBinary(cfg.Segmentation.Command), WithArgs(cfg.Segmentation.Args...))
}

// LogFileName is the transcript written next to the mask.
func LogFileName(structure string) string {
	return normalizeStructure(structure) + "_segmentation_log.txt"
}

// Run segments sliceDir into outDir and returns the path of the produced
// "{structure}.nii.gz". The command transcript is saved in outDir whether or
// not the command succeeds.
func (s *Segmenter) Run(ctx context.Context, sliceDir, outDir, structure string) (string, error) {
	structure = normalizeStructure(structure)
	if structure == "" {
		return "", fmt.Errorf("structure required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create segmentation output: %w", err)
	}

	out, runErr := s.cmd.run(ctx, s.logger, map[string]string{
		"input":      sliceDir,
		"output_dir": outDir,
		"structure":  structure,
		"name":       structure,
	})
	logPath := filepath.Join(outDir, LogFileName(structure))
	if err := os.WriteFile(logPath, out.transcript(), 0o644); err != nil {
		s.logger.Warn("failed to write segmentation log", zap.String("path", logPath), zap.Error(err))
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", fault.Wrap(fault.Cancelled, ctx.Err(), "(segmentation %s)", sliceDir)
		}
		return "", fault.Wrap(fault.SegmentationFailed, runErr, "(%s)", sliceDir)
	}

	mask := filepath.Join(outDir, structure+".nii.gz")
	if _, err := os.Stat(mask); err != nil {
		return "", fault.New(fault.SegmentationFailed, "(no %s in %s)", filepath.Base(mask), outDir)
	}
	s.logger.Debug("segmentation finished", zap.String("input", sliceDir), zap.String("mask", mask))
	return mask, nil
}

func normalizeStructure(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
