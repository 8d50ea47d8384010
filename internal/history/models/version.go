// Package models holds the version ledger entries and the read-through
// milestone values of the history module.
package models

import (
	"time"

	"assessor/pkg/domain"
)

// AssessmentVersion is one append-only ledger entry capturing a completed
// scan run. Version numbers are gap-free and monotonically increasing per
// assessment; entry 1 is the initial scan. Never mutated after creation.
type AssessmentVersion struct {
	AssessmentID    domain.AssessmentID `json:"assessmentId"`
	Version         int                 `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	CreatedBy       string              `json:"createdBy"`
	ExecutionArn    string              `json:"executionArn"`
	FinishedAt      *time.Time          `json:"finishedAt,omitempty"`
	Error           string              `json:"error,omitempty"`
	WafrWorkloadArn string              `json:"wafrWorkloadArn,omitempty"`
	ExportRegion    string              `json:"exportRegion,omitempty"`
}
