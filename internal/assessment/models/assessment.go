package models

import (
	"encoding/json"
	"time"

	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

// Assessment is the aggregate root for one review run against a cloud
// account.
//
// Invariants:
//   - Identity is (OrgDomain, ID); the organization domain lives only here,
//     never on children. Child entities are reachable exclusively through
//     this root, which is what makes tenancy enforceable at the store
//     boundary.
//   - Step follows the pipeline machine in pkg/domain. Reviewer edits to the
//     tree (disabled/none/checked flags) are legal only while Step is
//     FINISHED.
//   - Deleting an assessment cascades to pillars, questions, best practices,
//     findings, association rows, comments, versions, and exports.
//
// RawGraphData and GraphData are scan-derived statistics. They are opaque to
// this service: stored, returned, never interpreted.
type Assessment struct {
	OrgDomain       domain.OrgDomain      `json:"organizationDomain"`
	ID              domain.AssessmentID   `json:"assessmentId"`
	Name            string                `json:"name"`
	CreatedBy       string                `json:"createdBy"`
	CreatedAt       time.Time             `json:"createdAt"`
	Regions         []string              `json:"regions"`
	ExportRegion    string                `json:"exportRegion,omitempty"`
	RoleArn         string                `json:"roleArn"`
	Workflows       []string              `json:"workflows"`
	Step            domain.AssessmentStep `json:"step"`
	StepError       *StepError            `json:"error,omitempty"`
	RawGraphData    json.RawMessage       `json:"rawGraphData,omitempty"`
	GraphData       json.RawMessage       `json:"graphData,omitempty"`
	WafrWorkloadArn string                `json:"wafrWorkloadArn,omitempty"`
	OpportunityID   string                `json:"opportunityId,omitempty"`
	Folder          *domain.FolderID      `json:"folder,omitempty"`

	Pillars []Pillar `json:"pillars,omitempty"`
}

// StepError records why the pipeline moved an assessment to ERRORED.
type StepError struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

// NewAssessment constructs the aggregate root at scan launch. The pipeline
// owns all later step movement.
func NewAssessment(org domain.OrgDomain, id domain.AssessmentID, name, createdBy, roleArn string, regions, workflows []string, now time.Time) (*Assessment, error) {
	if org == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "organization domain cannot be empty")
	}
	if id == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "assessment id cannot be empty")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "assessment name cannot be empty")
	}
	if roleArn == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "role arn cannot be empty")
	}
	return &Assessment{
		OrgDomain: org,
		ID:        id,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: now,
		Regions:   regions,
		RoleArn:   roleArn,
		Workflows: workflows,
		Step:      domain.StepScanningStarted,
	}, nil
}

// EditsAllowed reports whether reviewer mutations to the tree are currently
// legal. Edits are only meaningful on a completed tree.
func (a *Assessment) EditsAllowed() bool {
	return a.Step == domain.StepFinished
}

// CanAdvanceTo checks a pipeline transition against the step machine.
// Returns an error suitable for returning to the pipeline caller.
func (a *Assessment) CanAdvanceTo(next domain.AssessmentStep) error {
	if !a.Step.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeIllegalTransition,
			"cannot move assessment from %s to %s", a.Step, next)
	}
	return nil
}

// ApplyStep moves the assessment to next, recording the error payload when
// the pipeline reports ERRORED. Call CanAdvanceTo first.
func (a *Assessment) ApplyStep(next domain.AssessmentStep, stepErr *StepError) {
	a.Step = next
	if next == domain.StepErrored {
		a.StepError = stepErr
	} else {
		a.StepError = nil
	}
}

// CanRescan checks whether a new pipeline run may be launched. Rescans only
// make sense once the previous run has reached a terminal step; they reuse
// the assessment identity and reset the machine.
func (a *Assessment) CanRescan() error {
	if !a.Step.IsTerminal() {
		return dErrors.Newf(dErrors.CodeIllegalTransition,
			"cannot rescan while a run is in progress (step %s)", a.Step)
	}
	return nil
}

// ApplyRescan resets the step machine for a fresh pipeline run.
func (a *Assessment) ApplyRescan() {
	a.Step = domain.StepScanningStarted
	a.StepError = nil
}
