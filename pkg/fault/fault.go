// Package fault defines the error taxonomy shared by every pipeline stage.
//
// Stages return *Error values carrying a Kind so the batch orchestrator can turn
// any per-patient failure into a ProcessingResult without inspecting messages.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The string value is what appears in reports.
type Kind string

const (
	PathNotFound           Kind = "PathNotFound"
	NoValidSlices          Kind = "NoValidSlices"
	InconsistentSeries     Kind = "InconsistentSeries"
	UnsupportedOrientation Kind = "UnsupportedOrientation"
	SliceCountMismatch     Kind = "SliceCountMismatch"
	GridMismatch           Kind = "GridMismatch"
	ContourBuildFailure    Kind = "ContourBuildFailure"
	UnsafeOutputPath       Kind = "UnsafeOutputPath"
	UnexpectedFault        Kind = "UnexpectedFault"
	Cancelled              Kind = "Cancelled"
	SegmentationFailed     Kind = "SegmentationFailed"
	ConversionFailed       Kind = "ConversionFailed"
)

// Error is a classified failure raised by one pipeline stage.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	// a bare stage annotation over an error of the same kind adds no text
	var inner *Error
	if e.Msg == "" && errors.As(e.Err, &inner) && inner.Kind == e.Kind {
		return e.Err.Error()
	}
	msg := string(e.Kind)
	if e.Msg != "" {
		msg += " " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a formatted detail message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithStage annotates err with the pipeline stage unless it already carries
// one. Context wrapped around a classified error is kept. Unclassified errors
// become UnexpectedFault.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return &Error{Kind: UnexpectedFault, Stage: stage, Err: err}
	}
	if fe.Stage != "" {
		return err
	}
	if fe == err {
		cp := *fe
		cp.Stage = stage
		return &cp
	}
	return &Error{Kind: fe.Kind, Stage: stage, Err: err}
}

// KindOf reports the Kind of err. Unclassified errors are UnexpectedFault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return UnexpectedFault
}

// StageOf reports the stage recorded on err, if any.
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
