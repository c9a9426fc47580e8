package transerrors

import (
	"errors"
	"strings"
)

// Structure (S) Errors
var (
	ErrSZeroSizeInstruction    = errors.New("S1|ZeroSizeInstruction: Decoder returned a valid instruction of size zero.")
	ErrSIrreducibleNoCandidate = errors.New("S2|IrreducibleNoCandidate: Conflict cluster has no backward range ending at its last index.")
	ErrSRangeOutOfBounds       = errors.New("S3|RangeOutOfBounds: Range does not lie within the superblock.")
	ErrSUnitClosed             = errors.New("S4|UnitClosed: Translation unit was already closed.")
)

// Address (A) Errors
var (
	ErrAIncompletePlacement = errors.New("A1|IncompletePlacement: Unit closed while a local placement was never produced.")
	ErrARegistryClosed      = errors.New("A2|RegistryClosed: Address registry used after close.")
	ErrAQueueEmpty          = errors.New("A3|QueueEmpty: No pending address to start.")
)

// Wasm (W) Errors
var (
	ErrWLabelNotOpen   = errors.New("W1|LabelNotOpen: Branch or end on a label that is not open.")
	ErrWOpenScaffolds  = errors.New("W2|OpenScaffolds: Sink closed with open labels.")
	ErrWMissingBody    = errors.New("W3|MissingBody: Defined function has no body.")
	ErrWSinkClosed     = errors.New("W4|SinkClosed: Instruction added to a closed sink.")
	ErrWForeignObject  = errors.New("W5|ForeignObject: Object belongs to another module.")
	ErrWModuleFinished = errors.New("W6|ModuleFinished: Module modified after encoding.")
)

// Program and mapping (P) Errors
var (
	ErrPInvalidProgram  = errors.New("P1|InvalidProgram: Program blob could not be decoded.")
	ErrPUnknownAddress  = errors.New("P2|UnknownAddress: Address has no mapping entry.")
	ErrPMappingConflict = errors.New("P3|MappingConflict: Address already exported by another unit.")
)

var all = []error{
	ErrSZeroSizeInstruction, ErrSIrreducibleNoCandidate, ErrSRangeOutOfBounds, ErrSUnitClosed,
	ErrAIncompletePlacement, ErrARegistryClosed, ErrAQueueEmpty,
	ErrWLabelNotOpen, ErrWOpenScaffolds, ErrWMissingBody, ErrWSinkClosed, ErrWForeignObject, ErrWModuleFinished,
	ErrPInvalidProgram, ErrPUnknownAddress, ErrPMappingConflict,
}

// sentinel returns the registered error wrapped by err, or nil.
func sentinel(err error) error {
	for _, s := range all {
		if errors.Is(err, s) {
			return s
		}
	}
	return nil
}

// GetErrorName extracts the error name from a (possibly wrapped) error.
func GetErrorName(err error) string {
	s := sentinel(err)
	if s == nil {
		return ""
	}
	parts := strings.SplitN(s.Error(), "|", 2)
	name, _, _ := strings.Cut(parts[1], ":")
	return strings.TrimSpace(name)
}

// GetErrorCode extracts the error code, e.g. "S2".
func GetErrorCode(err error) string {
	s := sentinel(err)
	if s == nil {
		return ""
	}
	code, _, _ := strings.Cut(s.Error(), "|")
	return strings.TrimSpace(code)
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	s := sentinel(err)
	if s == nil {
		return ""
	}
	_, desc, ok := strings.Cut(s.Error(), ":")
	if !ok {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(desc)
}
