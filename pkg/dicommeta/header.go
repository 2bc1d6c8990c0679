// Package dicommeta reads DICOM headers into typed, optional-field values.
//
// Every getter returns (value, ok). A missing or malformed attribute yields
// ok == false, and callers branch on presence instead of recovering from
// lookups that fail.
package dicommeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"rtstructgen/internal/models"
)

// Header is a parsed DICOM dataset without bulk pixel data.
type Header struct {
	path string
	ds   dicom.Dataset
}

// ReadHeader parses the file at path, skipping pixel data.
func ReadHeader(path string) (*Header, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Header{path: path, ds: ds}, nil
}

// FromDataset wraps an already parsed dataset.
func FromDataset(path string, ds dicom.Dataset) *Header {
	return &Header{path: path, ds: ds}
}

// Path returns the file the header was read from.
func (h *Header) Path() string { return h.path }

// Dataset exposes the underlying dataset.
func (h *Header) Dataset() dicom.Dataset { return h.ds }

// Strings returns the raw string values of t.
func (h *Header) Strings(t tag.Tag) ([]string, bool) {
	return Strings(h.ds.Elements, t)
}

// String returns the first value of t, trimmed of DICOM padding.
func (h *Header) String(t tag.Tag) (string, bool) {
	return String(h.ds.Elements, t)
}

// StringOr returns the first value of t or def when absent.
func (h *Header) StringOr(t tag.Tag, def string) string {
	if s, ok := h.String(t); ok {
		return s
	}
	return def
}

// Floats returns decimal-string or floating point values of t.
func (h *Header) Floats(t tag.Tag) ([]float64, bool) {
	return Floats(h.ds.Elements, t)
}

// Int returns the first integer value of t.
func (h *Header) Int(t tag.Tag) (int, bool) {
	elem, ok := find(h.ds.Elements, t)
	if !ok {
		return 0, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) == 0 {
			return 0, false
		}
		return v[0], true
	case []string:
		if len(v) == 0 {
			return 0, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(v[0]))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Vec3 returns a three-valued numeric attribute as a vector.
func (h *Header) Vec3(t tag.Tag) (r3.Vec, bool) {
	vals, ok := h.Floats(t)
	if !ok || len(vals) < 3 {
		return r3.Vec{}, false
	}
	return r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]}, true
}

// Orientation returns ImageOrientationPatient.
func (h *Header) Orientation() (models.Orientation, bool) {
	vals, ok := h.Floats(tag.ImageOrientationPatient)
	if !ok || len(vals) < 6 {
		return models.Orientation{}, false
	}
	return models.Orientation{
		Row:    r3.Vec{X: vals[0], Y: vals[1], Z: vals[2]},
		Column: r3.Vec{X: vals[3], Y: vals[4], Z: vals[5]},
	}, true
}

// SliceRecord converts the header into a SliceRecord. Absent optional
// attributes are left at their zero values; ok reports whether the
// mandatory position was present.
func (h *Header) SliceRecord() (models.SliceRecord, bool) {
	pos, ok := h.Vec3(tag.ImagePositionPatient)
	if !ok {
		return models.SliceRecord{}, false
	}
	rec := models.SliceRecord{
		Path:                h.path,
		Modality:            h.StringOr(tag.Modality, ""),
		SOPClassUID:         h.StringOr(tag.SOPClassUID, ""),
		SOPInstanceUID:      h.StringOr(tag.SOPInstanceUID, ""),
		SeriesInstanceUID:   h.StringOr(tag.SeriesInstanceUID, ""),
		FrameOfReferenceUID: h.StringOr(tag.FrameOfReferenceUID, ""),
		Position:            pos,
		PixelSpacing:        [2]float64{1, 1},
		Patient: models.PatientInfo{
			ID:        h.StringOr(tag.PatientID, ""),
			Name:      h.StringOr(tag.PatientName, ""),
			BirthDate: h.StringOr(tag.PatientBirthDate, ""),
			Sex:       h.StringOr(tag.PatientSex, ""),
		},
		Study: models.StudyInfo{
			InstanceUID:        h.StringOr(tag.StudyInstanceUID, ""),
			Date:               h.StringOr(tag.StudyDate, ""),
			Time:               h.StringOr(tag.StudyTime, ""),
			ID:                 h.StringOr(tag.StudyID, ""),
			AccessionNumber:    h.StringOr(tag.AccessionNumber, ""),
			ReferringPhysician: h.StringOr(tag.ReferringPhysicianName, ""),
			Description:        h.StringOr(tag.StudyDescription, ""),
		},
	}
	if o, ok := h.Orientation(); ok {
		rec.Orientation = o
	}
	if sp, ok := h.Floats(tag.PixelSpacing); ok && len(sp) >= 2 {
		rec.PixelSpacing = [2]float64{sp[0], sp[1]}
	}
	if rows, ok := h.Int(tag.Rows); ok {
		rec.Rows = rows
	}
	if cols, ok := h.Int(tag.Columns); ok {
		rec.Columns = cols
	}
	if n, ok := h.Int(tag.InstanceNumber); ok {
		rec.InstanceNumber = n
	}
	return rec, true
}

// Strings returns the string values of t within elems.
func Strings(elems []*dicom.Element, t tag.Tag) ([]string, bool) {
	elem, ok := find(elems, t)
	if !ok {
		return nil, false
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return nil, false
	}
	return vals, true
}

// String returns the first value of t within elems without padding.
func String(elems []*dicom.Element, t tag.Tag) (string, bool) {
	vals, ok := Strings(elems, t)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(strings.TrimRight(vals[0], "\x00"))
	if s == "" {
		return "", false
	}
	return s, true
}

// Floats returns the numeric values of t within elems, accepting decimal
// strings as well as binary floats.
func Floats(elems []*dicom.Element, t tag.Tag) ([]float64, bool) {
	elem, ok := find(elems, t)
	if !ok {
		return nil, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		return v, len(v) > 0
	case []string:
		out := make([]float64, 0, len(v))
		for _, s := range v {
			// multi-valued DS may arrive as one backslash-joined string
			for _, part := range strings.Split(s, `\`) {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				f, err := strconv.ParseFloat(part, 64)
				if err != nil {
					return nil, false
				}
				out = append(out, f)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

// Items returns the item element lists of the sequence t within elems.
func Items(elems []*dicom.Element, t tag.Tag) ([][]*dicom.Element, bool) {
	elem, ok := find(elems, t)
	if !ok {
		return nil, false
	}
	seq, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil, false
	}
	items := make([][]*dicom.Element, 0, len(seq))
	for _, item := range seq {
		if sub, ok := item.GetValue().([]*dicom.Element); ok {
			items = append(items, sub)
		}
	}
	return items, true
}

func find(elems []*dicom.Element, t tag.Tag) (*dicom.Element, bool) {
	for _, e := range elems {
		if e != nil && e.Tag == t {
			if e.Value == nil {
				return nil, false
			}
			return e, true
		}
	}
	return nil, false
}
