package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Orientation holds the row and column direction cosines of an image plane
// (DICOM ImageOrientationPatient).
type Orientation struct {
	// Row is the direction of increasing column index
	Row r3.Vec

	// Column is the direction of increasing row index
	Column r3.Vec
}

// Normal returns the through-plane axis, Row x Column.
func (o Orientation) Normal() r3.Vec {
	return r3.Cross(o.Row, o.Column)
}

// IsZero reports whether the orientation was absent from the header.
func (o Orientation) IsZero() bool {
	return o.Row == (r3.Vec{}) && o.Column == (r3.Vec{})
}

// Equal reports whether both cosine pairs agree within tol.
func (o Orientation) Equal(other Orientation, tol float64) bool {
	return vecClose(o.Row, other.Row, tol) && vecClose(o.Column, other.Column, tol)
}

func vecClose(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

// PatientInfo carries the patient module copied into generated objects.
type PatientInfo struct {
	ID        string
	Name      string
	BirthDate string
	Sex       string
}

// StudyInfo carries the general study module copied into generated objects.
type StudyInfo struct {
	InstanceUID        string
	Date               string
	Time               string
	ID                 string
	AccessionNumber    string
	ReferringPhysician string
	Description        string
}

// SliceRecord represents a single imaging slice with the metadata needed to
// place it in patient space. It is read once from a file header and never
// modified afterwards.
type SliceRecord struct {
	// Path is the file the record was read from
	Path string

	// Modality is the acquisition modality (e.g. "CT")
	Modality string

	// SOPClassUID identifies the series type (e.g. CT Image Storage)
	SOPClassUID string

	// SOPInstanceUID uniquely identifies this slice
	SOPInstanceUID string

	// SeriesInstanceUID groups slices of one acquisition
	SeriesInstanceUID string

	// FrameOfReferenceUID identifies the patient coordinate system
	FrameOfReferenceUID string

	// Position is ImagePositionPatient, the centre of the first voxel in mm
	Position r3.Vec

	// Orientation is ImageOrientationPatient
	Orientation Orientation

	// PixelSpacing is the distance between rows then between columns, in mm
	PixelSpacing [2]float64

	// Rows and Columns are the in-plane matrix size
	Rows    int
	Columns int

	// InstanceNumber is the acquisition index, 0 when absent
	InstanceNumber int

	Patient PatientInfo
	Study   StudyInfo
}

// Series represents an ordered stack of slices from one acquisition.
// Slices are always kept in ascending through-plane order.
type Series struct {
	// Slices in ascending order along the through-plane axis
	Slices []SliceRecord

	// Descending records that the on-disk order ran from high to low positions.
	// The mask volume is assumed to follow the on-disk order, so plane lookups
	// must be mirrored when this is set.
	Descending bool

	// SeriesInstanceUID shared by every member
	SeriesInstanceUID string
}

// Len returns the number of slices in the series.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Slices)
}

// Orientation returns the orientation shared by the series members.
func (s *Series) Orientation() Orientation {
	if s.Len() == 0 {
		return Orientation{}
	}
	return s.Slices[0].Orientation
}

// ThroughPlaneAxis returns the unit vector along which slices are stacked.
// Without orientation metadata the patient z axis is assumed.
func ThroughPlaneAxis(o Orientation) r3.Vec {
	n := o.Normal()
	if r3.Norm(n) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(n)
}

// Projection returns the position of rec along axis.
func (rec SliceRecord) Projection(axis r3.Vec) float64 {
	return r3.Dot(rec.Position, axis)
}

// MaskPlaneIndex maps the ascending slice index i to the index of the mask
// plane that occupies the same physical position.
func (s *Series) MaskPlaneIndex(i int) int {
	if s.Descending {
		return s.Len() - 1 - i
	}
	return i
}

// PixelToPatient converts an in-plane pixel coordinate (col, row) of slice
// rec into patient coordinates in mm.
func (rec SliceRecord) PixelToPatient(col, row float64) r3.Vec {
	p := rec.Position
	p = r3.Add(p, r3.Scale(col*rec.PixelSpacing[1], rec.Orientation.Row))
	p = r3.Add(p, r3.Scale(row*rec.PixelSpacing[0], rec.Orientation.Column))
	return p
}
