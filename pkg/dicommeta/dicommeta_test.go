package dicommeta

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeDataset(t *testing.T, e *Elements) string {
	t.Helper()
	elems, err := e.List()
	require.NoError(t, err)
	data, err := Encode(elems)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "slice.dcm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestHeaderRoundTrip(t *testing.T) {
	e := &Elements{}
	e.Str(tag.TransferSyntaxUID, ExplicitVRLittleEndian).
		Str(tag.MediaStorageSOPClassUID, "1.2.840.10008.5.1.4.1.1.2").
		Str(tag.SOPClassUID, "1.2.840.10008.5.1.4.1.1.2").
		Str(tag.SOPInstanceUID, "1.2.3.4").
		Str(tag.SeriesInstanceUID, "1.2.3").
		Str(tag.Modality, "CT").
		Str(tag.PatientID, "001").
		Str(tag.PatientName, "Doe^Jane").
		Decimal(tag.ImagePositionPatient, -100, -120.5, 42).
		Decimal(tag.ImageOrientationPatient, 1, 0, 0, 0, 1, 0).
		Decimal(tag.PixelSpacing, 0.75, 0.8).
		Add(tag.Rows, []int{512}).
		Add(tag.Columns, []int{256})

	h, err := ReadHeader(writeDataset(t, e))
	require.NoError(t, err)

	rec, ok := h.SliceRecord()
	require.True(t, ok)
	assert.Equal(t, "CT", rec.Modality)
	assert.Equal(t, "1.2.3.4", rec.SOPInstanceUID)
	assert.Equal(t, "1.2.3", rec.SeriesInstanceUID)
	assert.Equal(t, r3.Vec{X: -100, Y: -120.5, Z: 42}, rec.Position)
	assert.Equal(t, r3.Vec{X: 1}, rec.Orientation.Row)
	assert.Equal(t, r3.Vec{Y: 1}, rec.Orientation.Column)
	assert.Equal(t, [2]float64{0.75, 0.8}, rec.PixelSpacing)
	assert.Equal(t, 512, rec.Rows)
	assert.Equal(t, 256, rec.Columns)
	assert.Equal(t, "001", rec.Patient.ID)
	assert.Equal(t, "Doe^Jane", rec.Patient.Name)
	assert.Equal(t, "", rec.FrameOfReferenceUID)
}

func TestHeaderMissingAttributes(t *testing.T) {
	e := &Elements{}
	e.Str(tag.TransferSyntaxUID, ExplicitVRLittleEndian).
		Str(tag.Modality, "CT")

	h, err := ReadHeader(writeDataset(t, e))
	require.NoError(t, err)

	_, ok := h.SliceRecord()
	assert.False(t, ok, "record without ImagePositionPatient")

	_, ok = h.Orientation()
	assert.False(t, ok)
	_, ok = h.Int(tag.Rows)
	assert.False(t, ok)
	assert.Equal(t, "fallback", h.StringOr(tag.SeriesInstanceUID, "fallback"))
}

func TestReadHeaderRejectsNonDICOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a dicom file"), 0o644))
	_, err := ReadHeader(path)
	assert.Error(t, err)
}

func TestFloatsAcceptsBackslashJoined(t *testing.T) {
	elem, err := dicom.NewElement(tag.ImagePositionPatient, []string{`1.5\-2\3`})
	require.NoError(t, err)
	vals, ok := Floats([]*dicom.Element{elem}, tag.ImagePositionPatient)
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, -2, 3}, vals)

	bad, err := dicom.NewElement(tag.ImagePositionPatient, []string{"x", "1", "2"})
	require.NoError(t, err)
	_, ok = Floats([]*dicom.Element{bad}, tag.ImagePositionPatient)
	assert.False(t, ok)
}

func TestItems(t *testing.T) {
	inner := &Elements{}
	inner.Str(tag.ReferencedSOPInstanceUID, "1.2.3.9")
	item, err := inner.List()
	require.NoError(t, err)

	e := &Elements{}
	e.Add(tag.ContourImageSequence, [][]*dicom.Element{item, item})
	elems, err := e.List()
	require.NoError(t, err)

	items, ok := Items(elems, tag.ContourImageSequence)
	require.True(t, ok)
	require.Len(t, items, 2)
	uid, ok := Strings(items[1], tag.ReferencedSOPInstanceUID)
	require.True(t, ok)
	assert.Equal(t, []string{"1.2.3.9"}, uid)

	_, ok = Items(elems, tag.ROIContourSequence)
	assert.False(t, ok)
}

func TestElementsListSortsAndKeepsFirstError(t *testing.T) {
	e := &Elements{}
	e.Str(tag.SOPInstanceUID, "1").Str(tag.PatientID, "2").Str(tag.Modality, "CT")
	elems, err := e.List()
	require.NoError(t, err)
	for i := 1; i < len(elems); i++ {
		prev, cur := elems[i-1].Tag, elems[i].Tag
		assert.True(t, prev.Group < cur.Group || (prev.Group == cur.Group && prev.Element < cur.Element))
	}

	bad := &Elements{}
	bad.Add(tag.Rows, "not an int slice").Str(tag.Modality, "CT")
	_, err = bad.List()
	assert.Error(t, err)
}

func TestFormatDecimals(t *testing.T) {
	got := FormatDecimals([]float64{0, 1.5, -120.25, 100, -0.0000001, 123456789.123456})
	assert.Equal(t, []string{"0", "1.5", "-120.25", "100", "0", "123456789.123456"}, got)
	for _, s := range got {
		assert.LessOrEqual(t, len(s), 16)
	}
}

func TestNewUID(t *testing.T) {
	a, b := NewUID(), NewUID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "2.25."))
	assert.LessOrEqual(t, len(a), 64)
}
