package rtstruct

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"rtstructgen/internal/models"
	"rtstructgen/internal/testsupport"
	"rtstructgen/pkg/dicommeta"
	"rtstructgen/pkg/fault"
	"rtstructgen/pkg/series"
)

const (
	gridSize = 64
	nSlices  = 12
)

func writeSeries(t *testing.T, opts ...testsupport.SeriesOption) (*models.Series, []string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "PRE")
	opts = append([]testsupport.SeriesOption{
		testsupport.WithSlices(nSlices),
		testsupport.WithGrid(gridSize, gridSize),
	}, opts...)
	paths := testsupport.WriteSeries(t, dir, opts...)
	s, err := series.NewValidator(series.DefaultOptions(), nil).Validate(dir)
	require.NoError(t, err)
	return s, paths
}

func TestBuildRoundTrip(t *testing.T) {
	planes := []int{2, 5, 9}
	for _, descending := range []bool{false, true} {
		name := "ascending"
		var opts []testsupport.SeriesOption
		if descending {
			name = "descending"
			opts = append(opts, testsupport.Descending())
		}
		t.Run(name, func(t *testing.T) {
			s, paths := writeSeries(t, opts...)
			require.Equal(t, descending, s.Descending)
			mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices},
				testsupport.Planes(gridSize, gridSize, 10, planes...))

			out := filepath.Join(t.TempDir(), "001_PRE_rtstruct.dcm")
			ss, err := NewBuilder("Pancreas", [3]int{255, 0, 0}, zaptest.NewLogger(t)).Build(s, mask, out)
			require.NoError(t, err)
			require.Len(t, ss.Contours, len(planes))

			sum, err := Inspect(out)
			require.NoError(t, err)
			assert.Equal(t, "Pancreas", sum.ROIName)
			assert.Equal(t, [3]int{255, 0, 0}, sum.Color)
			assert.Equal(t, s.SeriesInstanceUID, sum.ReferencedSeriesUID)
			assert.Equal(t, ss.SOPInstanceUID, sum.SOPInstanceUID)
			assert.Equal(t, "001", sum.PatientID)
			require.Len(t, sum.Contours, len(planes))

			// mask plane k lies on the k-th file on disk
			want := map[string]float64{}
			for _, k := range planes {
				h, err := dicommeta.ReadHeader(paths[k])
				require.NoError(t, err)
				rec, ok := h.SliceRecord()
				require.True(t, ok)
				want[rec.SOPInstanceUID] = rec.Position.Z
			}
			for _, c := range sum.Contours {
				z, ok := want[c.ReferencedSOPInstanceUID]
				require.True(t, ok, "contour references unexpected slice %s", c.ReferencedSOPInstanceUID)
				assert.InDelta(t, z, c.Z, 1e-6)
				assert.Equal(t, 4, c.Points)
				assert.Equal(t, ContourTypeClosedPlanar, c.GeometricType)
			}
		})
	}
}

func TestContoursPlacement(t *testing.T) {
	s, _ := writeSeries(t)
	mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices},
		testsupport.Planes(gridSize, gridSize, 10, 4))

	contours, err := NewBuilder("Liver", [3]int{0, 255, 0}, nil).Contours(s, mask)
	require.NoError(t, err)
	require.Len(t, contours, 1)
	c := contours[0]
	assert.Equal(t, 4, c.SliceIndex)
	assert.Equal(t, s.Slices[4].SOPInstanceUID, c.SOPInstanceUID)

	// square spans columns and rows 27..36; 0.8 mm pixels from -200
	first := c.Points[0]
	assert.InDelta(t, -200+27*0.8, first.X, 1e-9)
	assert.InDelta(t, -200+27*0.8, first.Y, 1e-9)
	assert.InDelta(t, s.Slices[4].Position.Z, first.Z, 1e-9)
	for _, p := range c.Points {
		assert.InDelta(t, first.Z, p.Z, 1e-9, "contour must be planar")
	}
}

func TestContoursLogsDroppedComponents(t *testing.T) {
	s, _ := writeSeries(t)
	mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices}, func(x, y, z int) bool {
		if z != 4 {
			return false
		}
		big := x >= 20 && x < 30 && y >= 20 && y < 30
		small := x >= 50 && x < 53 && y >= 50 && y < 53
		return big || small
	})

	core, logs := observer.New(zapcore.DebugLevel)
	contours, err := NewBuilder("Liver", [3]int{0, 255, 0}, zap.New(core)).Contours(s, mask)
	require.NoError(t, err)
	require.Len(t, contours, 1)

	entries := logs.FilterMessage("dropping smaller components").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(4), fields["slice"])
	assert.Equal(t, int64(1), fields["components"])
	assert.Equal(t, int64(9), fields["pixels"])
	assert.Equal(t, int64(100), fields["kept"])
}

func TestSummarizeInMemory(t *testing.T) {
	s, _ := writeSeries(t)
	mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices},
		testsupport.Planes(gridSize, gridSize, 10, 3, 7))

	out := filepath.Join(t.TempDir(), "mem.dcm")
	ss, err := NewBuilder("Pancreas", [3]int{255, 0, 0}, nil).Build(s, mask, out)
	require.NoError(t, err)

	ds, err := Dataset(ss)
	require.NoError(t, err)
	sum, err := Summarize(dicommeta.FromDataset("", ds))
	require.NoError(t, err)
	assert.Empty(t, sum.Path)
	assert.Equal(t, "Pancreas", sum.ROIName)
	assert.Equal(t, ss.SOPInstanceUID, sum.SOPInstanceUID)
	assert.Equal(t, s.SeriesInstanceUID, sum.ReferencedSeriesUID)
	assert.Len(t, sum.Contours, 2)

	fromDisk, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, fromDisk.Contours, sum.Contours)
}

func TestBuildEmptyMask(t *testing.T) {
	s, _ := writeSeries(t)
	mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices}, nil)

	out := filepath.Join(t.TempDir(), "empty.dcm")
	ss, err := NewBuilder("Pancreas", [3]int{255, 0, 0}, nil).Build(s, mask, out)
	require.NoError(t, err)
	assert.Empty(t, ss.Contours)

	sum, err := Inspect(out)
	require.NoError(t, err)
	assert.Empty(t, sum.Contours)
	assert.Equal(t, "Pancreas", sum.ROIName)
}

func TestBuildFailureLeavesNoFile(t *testing.T) {
	s, _ := writeSeries(t)
	mask := testsupport.NewMask([3]int{gridSize, gridSize, nSlices}, func(x, y, z int) bool {
		return z == 3 && y == 20 && x >= 10 && x < 20
	})

	out := filepath.Join(t.TempDir(), "fail.dcm")
	_, err := NewBuilder("Pancreas", [3]int{255, 0, 0}, nil).Build(s, mask, out)
	require.Error(t, err)
	assert.Equal(t, fault.ContourBuildFailure, fault.KindOf(err))
	assert.NoFileExists(t, out)

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestInspectRejectsCTSlice(t *testing.T) {
	_, paths := writeSeries(t)
	_, err := Inspect(paths[0])
	assert.Error(t, err)
}
