// Package testsupport writes synthetic CT series, masks and configurations for
// tests. Slices carry full headers but no pixel data.
package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"

	"rtstructgen/pkg/config"
	"rtstructgen/pkg/dicommeta"
)

// SeriesOption customizes a synthetic series.
type SeriesOption func(*seriesBuilder)

type seriesBuilder struct {
	count       int
	rows, cols  int
	start, step float64
	descending  bool
	modality    string
	sopClass    string
	seriesUID   string
	frameUID    string
	patientID   string
	orientation []float64
	spacing     [2]float64
	positions   func(i int) float64
	extension   string
	mutate      map[int]func(*dicommeta.Elements)
}

// WithSlices sets the number of slices (default 50).
func WithSlices(n int) SeriesOption {
	return func(b *seriesBuilder) { b.count = n }
}

// WithGrid sets Rows and Columns (default 512x512).
func WithGrid(rows, cols int) SeriesOption {
	return func(b *seriesBuilder) { b.rows, b.cols = rows, cols }
}

// Descending writes files so that on-disk order runs from high to low z.
func Descending() SeriesOption {
	return func(b *seriesBuilder) { b.descending = true }
}

// WithModality overrides the Modality of every slice.
func WithModality(m string) SeriesOption {
	return func(b *seriesBuilder) { b.modality = m }
}

// WithSOPClass overrides the SOPClassUID of every slice.
func WithSOPClass(uid string) SeriesOption {
	return func(b *seriesBuilder) { b.sopClass = uid }
}

// WithSeriesUID sets the SeriesInstanceUID.
func WithSeriesUID(uid string) SeriesOption {
	return func(b *seriesBuilder) { b.seriesUID = uid }
}

// WithPatientID sets PatientID.
func WithPatientID(id string) SeriesOption {
	return func(b *seriesBuilder) { b.patientID = id }
}

// WithOrientation sets ImageOrientationPatient. An empty call omits the
// attribute entirely.
func WithOrientation(cosines ...float64) SeriesOption {
	return func(b *seriesBuilder) { b.orientation = cosines }
}

// WithZ places slice i (on-disk order) at z = start + i*step, ignoring
// Descending.
func WithZ(fn func(i int) float64) SeriesOption {
	return func(b *seriesBuilder) { b.positions = fn }
}

// WithExtension changes the file extension (default ".dcm").
func WithExtension(ext string) SeriesOption {
	return func(b *seriesBuilder) { b.extension = ext }
}

// WithSliceEdit applies fn to the elements of on-disk slice i before writing.
func WithSliceEdit(i int, fn func(*dicommeta.Elements)) SeriesOption {
	return func(b *seriesBuilder) { b.mutate[i] = fn }
}

// WriteSeries writes a synthetic axial CT series into dir and returns the file
// paths in on-disk order. Slices are 2.5 mm apart starting at z = -50.
func WriteSeries(t testing.TB, dir string, opts ...SeriesOption) []string {
	t.Helper()

	b := &seriesBuilder{
		count:       50,
		rows:        512,
		cols:        512,
		start:       -50,
		step:        2.5,
		modality:    "CT",
		sopClass:    config.CTImageStorage,
		seriesUID:   dicommeta.NewUID(),
		frameUID:    dicommeta.NewUID(),
		patientID:   "001",
		orientation: []float64{1, 0, 0, 0, 1, 0},
		spacing:     [2]float64{0.8, 0.8},
		extension:   ".dcm",
		mutate:      map[int]func(*dicommeta.Elements){},
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	studyUID := dicommeta.NewUID()
	paths := make([]string, 0, b.count)
	for i := 0; i < b.count; i++ {
		z := b.start + float64(i)*b.step
		if b.descending {
			z = b.start + float64(b.count-1-i)*b.step
		}
		if b.positions != nil {
			z = b.positions(i)
		}
		sopUID := dicommeta.NewUID()

		e := &dicommeta.Elements{}
		e.Str(tag.TransferSyntaxUID, dicommeta.ExplicitVRLittleEndian).
			Str(tag.MediaStorageSOPClassUID, b.sopClass).
			Str(tag.MediaStorageSOPInstanceUID, sopUID).
			Str(tag.SOPClassUID, b.sopClass).
			Str(tag.SOPInstanceUID, sopUID).
			Str(tag.Modality, b.modality).
			Str(tag.PatientID, b.patientID).
			Str(tag.PatientName, "Test^Patient").
			Str(tag.StudyInstanceUID, studyUID).
			Str(tag.StudyDate, "20240101").
			Str(tag.SeriesInstanceUID, b.seriesUID).
			Str(tag.FrameOfReferenceUID, b.frameUID).
			Str(tag.InstanceNumber, fmt.Sprint(i+1)).
			Decimal(tag.ImagePositionPatient, -200, -200, z).
			Decimal(tag.PixelSpacing, b.spacing[0], b.spacing[1]).
			Add(tag.Rows, []int{b.rows}).
			Add(tag.Columns, []int{b.cols})
		if len(b.orientation) > 0 {
			e.Decimal(tag.ImageOrientationPatient, b.orientation...)
		}
		if fn, ok := b.mutate[i]; ok {
			fn(e)
		}

		elems, err := e.List()
		if err != nil {
			t.Fatalf("build slice %d: %v", i, err)
		}
		data, err := dicommeta.Encode(elems)
		if err != nil {
			t.Fatalf("encode slice %d: %v", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("IM%04d%s", i, b.extension))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		paths = append(paths, path)
	}
	return paths
}

// WriteJunk writes a non-DICOM file named name into dir.
func WriteJunk(t testing.TB, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("this is not a DICOM file\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
