package batch

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"rtstructgen/internal/models"
	"rtstructgen/internal/testsupport"
	"rtstructgen/pkg/config"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/nifti"
)

const grid = 64

// writeCase lays out a 50-slice series and a mask of the given depth whose
// listed planes hold a square.
func writeCase(t *testing.T, cfg *config.Config, id string, depth int, planes ...int) {
	t.Helper()
	sliceDir, maskPath := testsupport.CaseDirs(cfg, id, "PRE")
	testsupport.WriteSeries(t, sliceDir, testsupport.WithGrid(grid, grid), testsupport.WithPatientID(id))
	testsupport.WriteMask(t, maskPath, [3]int{grid, grid, depth}, testsupport.Planes(grid, grid, 12, planes...))
}

func TestRunScenarios(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeCase(t, cfg, "001", 50, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20)
	writeCase(t, cfg, "002", 48, 5)
	// patient without any input for the phase
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.SliceRoot, "003"), 0o755))

	core, logs := observer.New(zapcore.InfoLevel)
	var progress bytes.Buffer
	o := NewOrchestrator(cfg, zap.New(core), WithProgressWriter(&progress))

	report, err := o.Run(context.Background(), RootsFromConfig(cfg))
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	ok := report.Results[0]
	assert.Equal(t, "success", ok.Status())
	assert.Equal(t, 11, ok.Contours)
	assert.FileExists(t, filepath.Join(cfg.Paths.OutputRoot, "001_PRE_rtstruct.dcm"))

	mismatch := report.Results[1]
	assert.Equal(t, "failure: SliceCountMismatch (50, 48)", mismatch.Status())
	assert.Equal(t, StageReconcile, mismatch.Stage)
	assert.NoFileExists(t, filepath.Join(cfg.Paths.OutputRoot, "002_PRE_rtstruct.dcm"))

	missing := report.Results[2]
	assert.Equal(t, fault.PathNotFound, missing.Kind)
	assert.Equal(t, StageInputs, missing.Stage)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	// non-terminal progress goes to the log
	assert.Equal(t, 3, logs.FilterMessage("progress").Len())
	assert.Empty(t, progress.String())

	summary := report.Summary()
	assert.Contains(t, summary, "Success: 1/3, Failure: 2")
	assert.Contains(t, summary, "failure: SliceCountMismatch (50, 48)")

	saved, err := LoadReport(filepath.Join(cfg.Paths.OutputRoot, ReportFileName))
	require.NoError(t, err)
	require.Len(t, saved.Results, 3)
	assert.Equal(t, fault.SliceCountMismatch, saved.Results[1].Kind)
	assert.Equal(t, "Pancreas", saved.Structure)
}

func TestRunCorruptMaskFailsOnlyItsCase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeCase(t, cfg, "001", 50, 10, 11)
	writeCase(t, cfg, "002", 50, 10, 11)

	// rewrite 001's mask header to claim 30000^3 voxels
	_, maskPath := testsupport.CaseDirs(cfg, "001", "PRE")
	vol := testsupport.NewMask([3]int{4, 4, 4}, func(x, y, z int) bool { return true })
	var buf bytes.Buffer
	require.NoError(t, nifti.Write(&buf, vol))
	raw := buf.Bytes()
	for i := 1; i <= 3; i++ {
		binary.LittleEndian.PutUint16(raw[40+2*i:], 30000)
	}
	require.NoError(t, os.WriteFile(maskPath, raw, 0o644))

	report, err := NewOrchestrator(cfg, nil).Run(context.Background(), RootsFromConfig(cfg))
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	corrupt := report.Results[0]
	assert.False(t, corrupt.Success)
	assert.Equal(t, fault.UnexpectedFault, corrupt.Kind)
	assert.Equal(t, StageLoadMask, corrupt.Stage)
	assert.Contains(t, corrupt.Message, "header declares")

	assert.True(t, report.Results[1].Success, report.Results[1].Message)
	assert.Equal(t, 2, report.Results[1].Contours)
}

func TestRunUnsafeOutputProcessesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeCase(t, cfg, "001", 50, 10)
	cfg.Paths.OutputRoot = filepath.Join(cfg.Paths.SliceRoot, "out")

	var calls int
	o := NewOrchestrator(cfg, nil, WithCaseFunc(func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		calls++
		return models.ProcessingResult{}
	}))
	report, err := o.Run(context.Background(), RootsFromConfig(cfg))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, fault.UnsafeOutputPath, fault.KindOf(err))
	assert.Zero(t, calls)
	assert.NoDirExists(t, cfg.Paths.OutputRoot)
}

func TestRunOutputEqualToSliceRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writeCase(t, cfg, "001", 50, 10)
	cfg.Paths.OutputRoot = cfg.Paths.SliceRoot

	var calls int
	o := NewOrchestrator(cfg, nil, WithCaseFunc(func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		calls++
		return models.ProcessingResult{}
	}))
	_, err := o.Run(context.Background(), RootsFromConfig(cfg))
	assert.True(t, fault.Is(err, fault.UnsafeOutputPath))
	assert.Zero(t, calls)
	assert.NoFileExists(t, filepath.Join(cfg.Paths.SliceRoot, LockFileName))
}

func TestRunRefusesLockedOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.SliceRoot, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Paths.OutputRoot, 0o755))

	held := flock.New(filepath.Join(cfg.Paths.OutputRoot, LockFileName))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	_, err = NewOrchestrator(cfg, nil).Run(context.Background(), RootsFromConfig(cfg))
	assert.ErrorContains(t, err, "in use")
}

func TestRunCancelledKeepsResultCount(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPhases("PRE", "POST"))
	for _, id := range []string{"001", "002", "003"} {
		require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.SliceRoot, id), 0o755))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewOrchestrator(cfg, nil).Run(ctx, RootsFromConfig(cfg))
	require.NoError(t, err)
	require.Len(t, report.Results, 6)
	for _, r := range report.Results {
		assert.Equal(t, fault.Cancelled, r.Kind)
	}
}
