package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"rtstructgen/pkg/batch"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var phase string
	var workers int
	var noReport bool

	cmd := &cobra.Command{
		Use:   "run [SLICES MASKS OUTPUT [STRUCTURE]]",
		Short: "Build one RT structure set per patient and phase",
		Long: "Build one RT structure set per patient and phase.\n\n" +
			"SLICES holds {patient_id}/{phase}/*.dcm, MASKS holds {patient_id}/{phase}/{structure}.nii.gz.\n" +
			"Missing roots are taken from the configuration or asked for on stdin.",
		Args: cobra.MaximumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if err := p.fill(args,
				promptField{label: "CT series root", dst: &cfg.Paths.SliceRoot, keep: true},
				promptField{label: "Mask root", dst: &cfg.Paths.MaskRoot, keep: true},
				promptField{label: "Output root", dst: &cfg.Paths.OutputRoot, keep: true},
				promptField{label: "Structure name", dst: &cfg.Structure.Name, keep: true},
			); err != nil {
				return err
			}
			if phase != "" {
				phases, err := parsePhases(phase)
				if err != nil {
					return err
				}
				cfg.Structure.Phases = phases
			}
			if workers > 0 {
				cfg.Processing.NumWorkers = workers
			}
			if noReport {
				cfg.Output.WriteReport = false
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := ctx.logger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "================================")
			fmt.Fprintln(out, "RT STRUCTURE SET GENERATION FROM CT SERIES AND NIFTI MASKS")
			fmt.Fprintf(out, "Structure: %s   Phases: %v   Workers: %d\n",
				cfg.Structure.Name, cfg.Structure.Phases, cfg.Processing.NumWorkers)
			fmt.Fprintln(out, "================================")

			orch := batch.NewOrchestrator(cfg, logger, batch.WithProgressWriter(cmd.ErrOrStderr()))
			report, err := orch.Run(cmd.Context(), batch.RootsFromConfig(cfg))
			if err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprint(out, report.Summary())
			if cfg.Output.WriteReport {
				fmt.Fprintf(out, "Report saved to: %s\n", filepath.Join(cfg.Paths.OutputRoot, batch.ReportFileName))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "Phase to process: PRE, POST or BOTH (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker pool size (default: number of CPUs)")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Do not write the YAML run report")
	return cmd
}
