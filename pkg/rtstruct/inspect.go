package rtstruct

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"

	"rtstructgen/pkg/dicommeta"
)

// Summary describes a structure set read back from disk.
type Summary struct {
	Path                string
	SOPInstanceUID      string
	SeriesInstanceUID   string
	ReferencedSeriesUID string
	PatientID           string
	Modality            string
	ROIName             string
	Color               [3]int
	Contours            []ContourSummary
}

// ContourSummary is one contour of a Summary.
type ContourSummary struct {
	ReferencedSOPInstanceUID string
	GeometricType            string
	Points                   int

	// Z is the patient z of the first vertex
	Z float64
}

// Inspect parses the structure set at path.
func Inspect(path string) (*Summary, error) {
	h, err := dicommeta.ReadHeader(path)
	if err != nil {
		return nil, err
	}
	return Summarize(h)
}

// Summarize reads the structure set held by h, which may come from a file or
// from an in-memory dataset.
func Summarize(h *dicommeta.Header) (*Summary, error) {
	path := h.Path()
	elems := h.Dataset().Elements

	s := &Summary{
		Path:              path,
		SOPInstanceUID:    h.StringOr(tag.SOPInstanceUID, ""),
		SeriesInstanceUID: h.StringOr(tag.SeriesInstanceUID, ""),
		PatientID:         h.StringOr(tag.PatientID, ""),
		Modality:          h.StringOr(tag.Modality, ""),
	}
	if s.Modality != "RTSTRUCT" {
		return nil, fmt.Errorf("%s: modality %q is not RTSTRUCT", path, s.Modality)
	}

	if frames, ok := dicommeta.Items(elems, tag.ReferencedFrameOfReferenceSequence); ok && len(frames) > 0 {
		if studies, ok := dicommeta.Items(frames[0], tag.RTReferencedStudySequence); ok && len(studies) > 0 {
			if series, ok := dicommeta.Items(studies[0], tag.RTReferencedSeriesSequence); ok && len(series) > 0 {
				s.ReferencedSeriesUID, _ = dicommeta.String(series[0], tag.SeriesInstanceUID)
			}
		}
	}

	if rois, ok := dicommeta.Items(elems, tag.StructureSetROISequence); ok && len(rois) > 0 {
		s.ROIName, _ = dicommeta.String(rois[0], tag.ROIName)
	}

	roiContours, ok := dicommeta.Items(elems, tag.ROIContourSequence)
	if !ok || len(roiContours) == 0 {
		return s, nil
	}
	if color, ok := dicommeta.Floats(roiContours[0], tag.ROIDisplayColor); ok && len(color) >= 3 {
		s.Color = [3]int{int(color[0]), int(color[1]), int(color[2])}
	}
	contours, _ := dicommeta.Items(roiContours[0], tag.ContourSequence)
	for _, c := range contours {
		cs := ContourSummary{}
		if refs, ok := dicommeta.Items(c, tag.ContourImageSequence); ok && len(refs) > 0 {
			cs.ReferencedSOPInstanceUID, _ = dicommeta.String(refs[0], tag.ReferencedSOPInstanceUID)
		}
		cs.GeometricType, _ = dicommeta.String(c, tag.ContourGeometricType)
		if data, ok := dicommeta.Floats(c, tag.ContourData); ok {
			cs.Points = len(data) / 3
			if len(data) >= 3 {
				cs.Z = data[2]
			}
		}
		s.Contours = append(s.Contours, cs)
	}
	return s, nil
}
