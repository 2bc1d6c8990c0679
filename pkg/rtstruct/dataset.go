package rtstruct

import (
	"fmt"
	"strconv"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/dicommeta"
)

// SOP class and coding constants written into every structure set.
const (
	RTStructureSetStorage   = "1.2.840.10008.5.1.4.1.1.481.3"
	DetachedStudyManagement = "1.2.840.10008.3.1.2.3.1"
	ContourTypeClosedPlanar = "CLOSED_PLANAR"
	InterpretedTypeOrgan    = "ORGAN"
	GenerationAlgorithmAuto = "AUTOMATIC"
	roiNumber               = "1"
	structureSetLabel       = "RTstruct"
	manufacturer            = "rtstructgen"
)

// Encode renders ss as a DICOM Part 10 RT Structure Set.
func Encode(ss *models.StructureSet) ([]byte, error) {
	ds, err := Dataset(ss)
	if err != nil {
		return nil, err
	}
	return dicommeta.Encode(ds.Elements)
}

// Dataset assembles the RT Structure Set elements for ss, file meta included.
func Dataset(ss *models.StructureSet) (dicom.Dataset, error) {
	series := ss.Series
	if series.Len() == 0 {
		return dicom.Dataset{}, fmt.Errorf("structure set has no source slices")
	}
	first := series.Slices[0]
	now := time.Now()
	date, clock := now.Format("20060102"), now.Format("150405")

	// every slice of the series is a contour image candidate
	imageRefs := make([][]*dicom.Element, 0, series.Len())
	for _, rec := range series.Slices {
		item, err := imageRef(rec.SOPClassUID, rec.SOPInstanceUID)
		if err != nil {
			return dicom.Dataset{}, err
		}
		imageRefs = append(imageRefs, item)
	}

	seriesRef, err := (&dicommeta.Elements{}).
		Str(tag.SeriesInstanceUID, series.SeriesInstanceUID).
		Add(tag.ContourImageSequence, imageRefs).
		List()
	if err != nil {
		return dicom.Dataset{}, err
	}
	studyRef, err := (&dicommeta.Elements{}).
		Str(tag.ReferencedSOPClassUID, DetachedStudyManagement).
		Str(tag.ReferencedSOPInstanceUID, first.Study.InstanceUID).
		Add(tag.RTReferencedSeriesSequence, [][]*dicom.Element{seriesRef}).
		List()
	if err != nil {
		return dicom.Dataset{}, err
	}
	frameRef, err := (&dicommeta.Elements{}).
		Str(tag.FrameOfReferenceUID, first.FrameOfReferenceUID).
		Add(tag.RTReferencedStudySequence, [][]*dicom.Element{studyRef}).
		List()
	if err != nil {
		return dicom.Dataset{}, err
	}

	roi, err := (&dicommeta.Elements{}).
		Str(tag.ROINumber, roiNumber).
		Str(tag.ReferencedFrameOfReferenceUID, first.FrameOfReferenceUID).
		Str(tag.ROIName, ss.StructureName).
		Str(tag.ROIGenerationAlgorithm, GenerationAlgorithmAuto).
		List()
	if err != nil {
		return dicom.Dataset{}, err
	}

	contourItems := make([][]*dicom.Element, 0, len(ss.Contours))
	for _, c := range ss.Contours {
		item, err := contourItem(c)
		if err != nil {
			return dicom.Dataset{}, err
		}
		contourItems = append(contourItems, item)
	}
	roiContour := &dicommeta.Elements{}
	roiContour.Add(tag.ROIDisplayColor, []string{
		strconv.Itoa(ss.Color[0]), strconv.Itoa(ss.Color[1]), strconv.Itoa(ss.Color[2]),
	}).Str(tag.ReferencedROINumber, roiNumber)
	if len(contourItems) > 0 {
		roiContour.Add(tag.ContourSequence, contourItems)
	}
	roiContourItem, err := roiContour.List()
	if err != nil {
		return dicom.Dataset{}, err
	}

	observation, err := (&dicommeta.Elements{}).
		Str(tag.ObservationNumber, roiNumber).
		Str(tag.ReferencedROINumber, roiNumber).
		Str(tag.ROIObservationLabel, ss.StructureName).
		Str(tag.RTROIInterpretedType, InterpretedTypeOrgan).
		Str(tag.ROIInterpreter, "").
		List()
	if err != nil {
		return dicom.Dataset{}, err
	}

	e := &dicommeta.Elements{}
	e.Add(tag.FileMetaInformationVersion, []byte{0x00, 0x01}).
		Str(tag.MediaStorageSOPClassUID, RTStructureSetStorage).
		Str(tag.MediaStorageSOPInstanceUID, ss.SOPInstanceUID).
		Str(tag.TransferSyntaxUID, dicommeta.ExplicitVRLittleEndian).
		Str(tag.ImplementationClassUID, dicommeta.ImplementationClassUID).
		Str(tag.SpecificCharacterSet, "ISO_IR 100").
		Str(tag.InstanceCreationDate, date).
		Str(tag.InstanceCreationTime, clock).
		Str(tag.SOPClassUID, RTStructureSetStorage).
		Str(tag.SOPInstanceUID, ss.SOPInstanceUID).
		Str(tag.StudyDate, first.Study.Date).
		Str(tag.StudyTime, first.Study.Time).
		Str(tag.AccessionNumber, first.Study.AccessionNumber).
		Str(tag.Modality, "RTSTRUCT").
		Str(tag.Manufacturer, manufacturer).
		Str(tag.ReferringPhysicianName, first.Study.ReferringPhysician).
		Str(tag.StudyDescription, first.Study.Description).
		Str(tag.SeriesDescription, ss.StructureName).
		Str(tag.PatientName, first.Patient.Name).
		Str(tag.PatientID, first.Patient.ID).
		Str(tag.PatientBirthDate, first.Patient.BirthDate).
		Str(tag.PatientSex, first.Patient.Sex).
		Str(tag.StudyInstanceUID, first.Study.InstanceUID).
		Str(tag.SeriesInstanceUID, ss.SeriesInstanceUID).
		Str(tag.StudyID, first.Study.ID).
		Str(tag.SeriesNumber, "1").
		Str(tag.InstanceNumber, "1").
		Str(tag.FrameOfReferenceUID, first.FrameOfReferenceUID).
		Str(tag.StructureSetLabel, structureSetLabel).
		Str(tag.StructureSetDate, date).
		Str(tag.StructureSetTime, clock).
		Add(tag.ReferencedFrameOfReferenceSequence, [][]*dicom.Element{frameRef}).
		Add(tag.StructureSetROISequence, [][]*dicom.Element{roi}).
		Add(tag.ROIContourSequence, [][]*dicom.Element{roiContourItem}).
		Add(tag.RTROIObservationsSequence, [][]*dicom.Element{observation})

	elems, err := e.List()
	if err != nil {
		return dicom.Dataset{}, err
	}
	return dicom.Dataset{Elements: elems}, nil
}

func imageRef(classUID, instanceUID string) ([]*dicom.Element, error) {
	return (&dicommeta.Elements{}).
		Str(tag.ReferencedSOPClassUID, classUID).
		Str(tag.ReferencedSOPInstanceUID, instanceUID).
		List()
}

func contourItem(c models.Contour) ([]*dicom.Element, error) {
	ref, err := imageRef(c.SOPClassUID, c.SOPInstanceUID)
	if err != nil {
		return nil, err
	}
	coords := make([]float64, 0, 3*len(c.Points))
	for _, p := range c.Points {
		coords = append(coords, p.X, p.Y, p.Z)
	}
	return (&dicommeta.Elements{}).
		Add(tag.ContourImageSequence, [][]*dicom.Element{ref}).
		Str(tag.ContourGeometricType, ContourTypeClosedPlanar).
		Str(tag.NumberOfContourPoints, strconv.Itoa(len(c.Points))).
		Decimal(tag.ContourData, coords...).
		List()
}
