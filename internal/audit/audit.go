// Package audit emits domain events for the review trail. Services publish
// through the Publisher interface; the Kafka implementation is optional and a
// nil *Kafka publisher degrades to a no-op so unit tests and broker-less
// deployments need no stubbing.
package audit

import (
	"context"
	"time"

	"assessor/pkg/domain"
)

// Action names a recorded domain event.
type Action string

const (
	ActionAssessmentCreated  Action = "assessment_created"
	ActionAssessmentDeleted  Action = "assessment_deleted"
	ActionStepChanged        Action = "assessment_step_changed"
	ActionAssessmentRescan   Action = "assessment_rescan"
	ActionExportRequested    Action = "export_requested"
	ActionExportCompleted    Action = "export_completed"
	ActionFindingHiddenSet   Action = "finding_hidden_changed"
	ActionVersionAppended    Action = "version_appended"
	ActionFolderAssigned     Action = "folder_assigned"
	ActionBestPracticeEdited Action = "best_practice_edited"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	Action       Action              `json:"action"`
	Timestamp    time.Time           `json:"timestamp"`
	OrgDomain    domain.OrgDomain    `json:"organizationDomain"`
	AssessmentID domain.AssessmentID `json:"assessmentId"`
	ActorID      string              `json:"actorId,omitempty"`
	RequestID    string              `json:"requestId,omitempty"`
	Detail       string              `json:"detail,omitempty"`
}

// Publisher delivers events to the review trail. Implementations must treat
// delivery as best-effort: audit failures never fail the operation that
// raised them.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}
