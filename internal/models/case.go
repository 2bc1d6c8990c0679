package models

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"rtstructgen/pkg/fault"
)

// PatientCase identifies one unit of batch work: a patient and acquisition
// phase with its input and output paths.
type PatientCase struct {
	PatientID  string
	Phase      string
	SliceDir   string
	MaskPath   string
	OutputPath string
}

// Label returns the "id/phase" form used in logs and reports.
func (c PatientCase) Label() string {
	if c.Phase == "" {
		return c.PatientID
	}
	return c.PatientID + "/" + c.Phase
}

// ProcessingResult is the outcome of running one PatientCase.
type ProcessingResult struct {
	PatientID  string        `yaml:"patientId"`
	Phase      string        `yaml:"phase"`
	Success    bool          `yaml:"success"`
	Kind       fault.Kind    `yaml:"kind,omitempty"`
	Stage      string        `yaml:"stage,omitempty"`
	Message    string        `yaml:"message,omitempty"`
	OutputPath string        `yaml:"outputPath,omitempty"`
	Contours   int           `yaml:"contours"`
	Duration   time.Duration `yaml:"duration"`
}

// Status renders the outcome as "success" or "failure: <Kind> <detail>".
func (r ProcessingResult) Status() string {
	if r.Success {
		return "success"
	}
	if r.Message == "" {
		return "failure: " + string(r.Kind)
	}
	return "failure: " + r.Message
}

// Contour is one closed planar polygon on a single series slice.
type Contour struct {
	// SliceIndex is the ascending index of the slice within the series
	SliceIndex int

	// SOPInstanceUID of the referenced slice
	SOPInstanceUID string

	// SOPClassUID of the referenced slice
	SOPClassUID string

	// Points in patient coordinates (mm), without repeating the first point
	Points []r3.Vec
}

// StructureSet is the generated structure-set object: one named structure
// with one contour per slice that contains foreground.
type StructureSet struct {
	SOPInstanceUID    string
	SeriesInstanceUID string
	StructureName     string
	Color             [3]int
	Contours          []Contour

	// Series is the source series the object is anchored to
	Series *Series
}
