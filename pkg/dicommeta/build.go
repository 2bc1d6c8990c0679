package dicommeta

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ExplicitVRLittleEndian is the transfer syntax used for generated objects.
const ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

// ImplementationClassUID identifies files written by rtstructgen.
const ImplementationClassUID = "2.25.318219616712840386718394471622180394513"

// NewUID returns a globally unique DICOM UID in the UUID-derived 2.25 arc.
func NewUID() string {
	u := uuid.New()
	return "2.25." + new(big.Int).SetBytes(u[:]).String()
}

// Elements accumulates dataset elements, keeping the first construction error.
type Elements struct {
	list []*dicom.Element
	err  error
}

// Add sets t to value, replacing an earlier element with the same tag.
// Strings, ints, bytes and nested [][]*dicom.Element sequences are accepted.
func (e *Elements) Add(t tag.Tag, value any) *Elements {
	if e.err != nil {
		return e
	}
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		e.err = fmt.Errorf("element %s: %w", t, err)
		return e
	}
	for i, existing := range e.list {
		if existing.Tag == t {
			e.list[i] = elem
			return e
		}
	}
	e.list = append(e.list, elem)
	return e
}

// Remove drops t if present.
func (e *Elements) Remove(t tag.Tag) *Elements {
	for i, existing := range e.list {
		if existing.Tag == t {
			e.list = append(e.list[:i], e.list[i+1:]...)
			break
		}
	}
	return e
}

// Str appends a single-valued string element.
func (e *Elements) Str(t tag.Tag, value string) *Elements {
	return e.Add(t, []string{value})
}

// Decimal appends a decimal-string element.
func (e *Elements) Decimal(t tag.Tag, values ...float64) *Elements {
	return e.Add(t, FormatDecimals(values))
}

// List returns the accumulated elements sorted by tag, or the first error.
func (e *Elements) List() ([]*dicom.Element, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]*dicom.Element, len(e.list))
	copy(out, e.list)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Tag, out[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})
	return out, nil
}

// FormatDecimals renders values as DICOM decimal strings (max 16 chars).
func FormatDecimals(values []float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		s := strconv.FormatFloat(v, 'f', 6, 64)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		if s == "-0" {
			s = "0"
		}
		if len(s) > 16 {
			s = strconv.FormatFloat(v, 'g', 10, 64)
		}
		out[i] = s
	}
	return out
}

// Encode serializes a dataset into a complete DICOM Part 10 byte stream.
func Encode(elems []*dicom.Element) ([]byte, error) {
	var buf bytes.Buffer
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elems}); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}
