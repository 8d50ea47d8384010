package models

import (
	"time"

	assessment "assessor/internal/assessment/models"
	"assessor/pkg/domain"
)

// Milestone is a point-in-time snapshot held by the external review tool.
// It is never persisted locally: every read goes through to the upstream and
// the value is immutable. The tree mirrors the assessment tree at capture
// time, except findingAmount is always zero because findings are not
// re-associated retroactively.
type Milestone struct {
	ID         domain.MilestoneID  `json:"milestoneId"`
	Name       string              `json:"name"`
	RecordedAt time.Time           `json:"recordedAt"`
	Pillars    []assessment.Pillar `json:"pillars,omitempty"`
}

// MilestoneSummary is one row of the upstream milestone listing.
type MilestoneSummary struct {
	ID         domain.MilestoneID `json:"milestoneId"`
	Name       string             `json:"name"`
	RecordedAt time.Time          `json:"recordedAt"`
}
