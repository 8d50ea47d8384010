package domain

import dErrors "assessor/pkg/domain-errors"

// Severity is the risk level assigned to a best practice or finding.
type Severity string

const (
	SeverityHigh    Severity = "HIGH"
	SeverityMedium  Severity = "MEDIUM"
	SeverityLow     Severity = "LOW"
	SeverityNone    Severity = "NONE"
	SeverityUnknown Severity = "UNKNOWN"
)

var validSeverities = map[Severity]bool{
	SeverityHigh:    true,
	SeverityMedium:  true,
	SeverityLow:     true,
	SeverityNone:    true,
	SeverityUnknown: true,
}

func (s Severity) IsValid() bool  { return validSeverities[s] }
func (s Severity) String() string { return string(s) }

// ParseSeverity constructs a Severity from external input.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unsupported severity %q", s)
	}
	return sev, nil
}

// AssessmentStep is the pipeline stage of an assessment. Transitions are
// driven by the scanning pipeline; reviewers never move the step directly.
//
// SCANNING_STARTED → PREPARING_ASSOCIATIONS → ASSOCIATING_FINDINGS → FINISHED
// ERRORED is reachable from any non-terminal step. FINISHED and ERRORED are
// terminal; a rescan resets to SCANNING_STARTED without creating a new
// assessment identity.
type AssessmentStep string

const (
	StepScanningStarted       AssessmentStep = "SCANNING_STARTED"
	StepPreparingAssociations AssessmentStep = "PREPARING_ASSOCIATIONS"
	StepAssociatingFindings   AssessmentStep = "ASSOCIATING_FINDINGS"
	StepFinished              AssessmentStep = "FINISHED"
	StepErrored               AssessmentStep = "ERRORED"
)

var validSteps = map[AssessmentStep]bool{
	StepScanningStarted:       true,
	StepPreparingAssociations: true,
	StepAssociatingFindings:   true,
	StepFinished:              true,
	StepErrored:               true,
}

func (s AssessmentStep) IsValid() bool  { return validSteps[s] }
func (s AssessmentStep) String() string { return string(s) }

// IsTerminal reports whether no further pipeline transition is legal.
func (s AssessmentStep) IsTerminal() bool {
	return s == StepFinished || s == StepErrored
}

// stepSuccessors holds the forward edges of the pipeline machine.
var stepSuccessors = map[AssessmentStep]AssessmentStep{
	StepScanningStarted:       StepPreparingAssociations,
	StepPreparingAssociations: StepAssociatingFindings,
	StepAssociatingFindings:   StepFinished,
}

// CanTransitionTo reports whether the pipeline may move from s to next.
func (s AssessmentStep) CanTransitionTo(next AssessmentStep) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StepErrored {
		return true
	}
	return stepSuccessors[s] == next
}

// ParseAssessmentStep constructs an AssessmentStep from external input.
func ParseAssessmentStep(s string) (AssessmentStep, error) {
	step := AssessmentStep(s)
	if !step.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unsupported assessment step %q", s)
	}
	return step, nil
}

// ExportStatus is the lifecycle state of a file export artifact.
//
// NOT_STARTED → IN_PROGRESS → COMPLETED | ERRORED. Terminal states are final;
// a new export request always creates a new row.
type ExportStatus string

const (
	ExportNotStarted ExportStatus = "NOT_STARTED"
	ExportInProgress ExportStatus = "IN_PROGRESS"
	ExportCompleted  ExportStatus = "COMPLETED"
	ExportErrored    ExportStatus = "ERRORED"
)

var validExportStatuses = map[ExportStatus]bool{
	ExportNotStarted: true,
	ExportInProgress: true,
	ExportCompleted:  true,
	ExportErrored:    true,
}

func (s ExportStatus) IsValid() bool  { return validExportStatuses[s] }
func (s ExportStatus) String() string { return string(s) }

// IsTerminal reports whether no further status transition is legal.
func (s ExportStatus) IsTerminal() bool {
	return s == ExportCompleted || s == ExportErrored
}

// CanTransitionTo reports whether the export machine may move from s to next.
func (s ExportStatus) CanTransitionTo(next ExportStatus) bool {
	switch s {
	case ExportNotStarted:
		return next == ExportInProgress || next == ExportErrored
	case ExportInProgress:
		return next == ExportCompleted || next == ExportErrored
	default:
		return false
	}
}

// ParseExportStatus constructs an ExportStatus from external input.
func ParseExportStatus(s string) (ExportStatus, error) {
	st := ExportStatus(s)
	if !st.IsValid() {
		return "", dErrors.Newf(dErrors.CodeBadRequest, "unsupported export status %q", s)
	}
	return st, nil
}

// ExportType is the artifact format of a file export.
type ExportType string

// ExportTypePDF is the only supported export format today.
const ExportTypePDF ExportType = "pdf"

func (t ExportType) IsValid() bool  { return t == ExportTypePDF }
func (t ExportType) String() string { return string(t) }
