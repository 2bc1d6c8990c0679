package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rtstructgen/pkg/batch"
	"rtstructgen/pkg/config"
	"rtstructgen/pkg/external"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:   "segment [SLICES MASKS [STRUCTURE]]",
		Short: "Run the segmentation engine over every patient and phase",
		Args:  cobra.MaximumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if err := p.fill(args,
				promptField{label: "CT series root", dst: &cfg.Paths.SliceRoot, keep: true},
				promptField{label: "Mask root", dst: &cfg.Paths.MaskRoot, keep: true},
				promptField{label: "Structure name", dst: &cfg.Structure.Name, keep: true},
			); err != nil {
				return err
			}
			if err := applyPhase(cfg, phase); err != nil {
				return err
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			roots := batch.Roots{SliceRoot: cfg.Paths.SliceRoot, MaskRoot: cfg.Paths.MaskRoot}
			if err := batch.CheckOutputSafety(roots.SliceRoot, roots.MaskRoot); err != nil {
				return err
			}
			seg := external.SegmenterFromConfig(cfg, logger)
			return runExternal(cmd, cfg, roots, "segmenting", seg.CaseFunc(cfg.Structure.Name))
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "Phase to process: PRE, POST or BOTH (default from config)")
	return cmd
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:   "convert [SLICES OUTPUT]",
		Short: "Convert every patient and phase series into a NIfTI volume",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			output := ""
			if err := p.fill(args,
				promptField{label: "CT series root", dst: &cfg.Paths.SliceRoot, keep: true},
				promptField{label: "Volume output root", dst: &output},
			); err != nil {
				return err
			}
			if err := applyPhase(cfg, phase); err != nil {
				return err
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			roots := batch.Roots{SliceRoot: cfg.Paths.SliceRoot, OutputRoot: output}
			if err := batch.CheckOutputSafety(roots.SliceRoot, roots.OutputRoot); err != nil {
				return err
			}
			conv := external.ConverterFromConfig(cfg, logger)
			return runExternal(cmd, cfg, roots, "converting", conv.CaseFunc(output))
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "Phase to process: PRE, POST or BOTH (default from config)")
	return cmd
}

func applyPhase(cfg *config.Config, phase string) error {
	if phase == "" {
		return nil
	}
	phases, err := parsePhases(phase)
	if err != nil {
		return err
	}
	cfg.Structure.Phases = phases
	return nil
}

// runExternal drives fn over every discovered case and prints the summary.
func runExternal(cmd *cobra.Command, cfg *config.Config, roots batch.Roots, desc string, fn batch.CaseFunc) error {
	started := time.Now()
	cases, err := batch.Discover(roots, batch.LayoutFromConfig(cfg))
	if err != nil {
		return err
	}

	progress := batch.NewProgress(cmd.ErrOrStderr(), len(cases), desc, nil)
	results, err := batch.RunCases(cmd.Context(), cases, cfg.Processing.NumWorkers, fn, progress.Advance)
	progress.Finish()
	if err != nil {
		return err
	}

	report := batch.NewReport(cfg.Structure.Name, roots, started, results)
	fmt.Fprint(cmd.OutOrStdout(), report.Summary())
	return nil
}
