package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/config"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/logging"
	"rtstructgen/pkg/nifti"
	"rtstructgen/pkg/reconcile"
	"rtstructgen/pkg/rtstruct"
	"rtstructgen/pkg/series"
)

// Pipeline stages, as recorded on failed results.
const (
	StageInputs    = "inputs"
	StageValidate  = "validate"
	StageLoadMask  = "load-mask"
	StageReconcile = "reconcile"
	StageBuild     = "build"
)

// Pipeline converts one PatientCase into a structure set file.
type Pipeline struct {
	validator  *series.Validator
	reconciler *reconcile.Reconciler
	builder    *rtstruct.Builder
	logger     *zap.Logger
}

// NewPipeline wires the per-case stages from cfg.
func NewPipeline(cfg *config.Config, logger *zap.Logger) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		validator:  series.NewValidator(series.OptionsFromConfig(cfg), logger),
		reconciler: reconcile.NewReconciler(logger),
		builder:    rtstruct.NewBuilder(cfg.Structure.Name, cfg.Structure.Color, logger),
		logger:     logger,
	}
}

// Process runs every stage for c. It never panics and never returns an error:
// all failures, including panics, are reported in the result.
func (p *Pipeline) Process(ctx context.Context, c models.PatientCase) (res models.ProcessingResult) {
	start := time.Now()
	stage := StageInputs
	defer func() {
		if r := recover(); r != nil {
			err := &fault.Error{Kind: fault.UnexpectedFault, Stage: stage, Msg: fmt.Sprintf("panic: %v", r)}
			res = failed(c, err, time.Since(start))
		}
		p.logResult(res)
	}()

	if err := ctx.Err(); err != nil {
		return failed(c, fault.Wrap(fault.Cancelled, err, ""), 0)
	}

	if err := requirePath(c.SliceDir); err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}
	if err := requirePath(c.MaskPath); err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}

	stage = StageValidate
	s, err := p.validator.Validate(c.SliceDir)
	if err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}

	stage = StageLoadMask
	mask, err := nifti.ReadFile(c.MaskPath)
	if err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}

	stage = StageReconcile
	if err := p.reconciler.Reconcile(s, mask); err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}

	stage = StageBuild
	ss, err := p.builder.Build(s, mask, c.OutputPath)
	if err != nil {
		return failed(c, fault.WithStage(err, stage), time.Since(start))
	}

	return models.ProcessingResult{
		PatientID:  c.PatientID,
		Phase:      c.Phase,
		Success:    true,
		OutputPath: c.OutputPath,
		Contours:   len(ss.Contours),
		Duration:   time.Since(start),
	}
}

func (p *Pipeline) logResult(res models.ProcessingResult) {
	fields := []zap.Field{
		zap.String("patient", res.PatientID),
		zap.String("phase", res.Phase),
		zap.Duration("took", res.Duration),
	}
	if res.Success {
		p.logger.Info("case converted", append(fields, zap.Int("contours", res.Contours), zap.String("output", res.OutputPath))...)
		return
	}
	p.logger.Warn("case failed", append(fields, zap.String("kind", string(res.Kind)), zap.String("stage", res.Stage), zap.String("error", res.Message))...)
}

func requirePath(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fault.New(fault.PathNotFound, "(%s)", path)
		}
		return fault.Wrap(fault.PathNotFound, err, "(%s)", path)
	}
	return nil
}

// failed converts err into a failed result for c.
func failed(c models.PatientCase, err error, took time.Duration) models.ProcessingResult {
	return models.ProcessingResult{
		PatientID: c.PatientID,
		Phase:     c.Phase,
		Kind:      fault.KindOf(err),
		Stage:     fault.StageOf(err),
		Message:   err.Error(),
		Duration:  took,
	}
}
