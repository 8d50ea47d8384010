package models

import (
	"time"

	"assessor/pkg/domain"
)

// Finding is one concrete scan result inside an assessment. Its identity
// encodes the scanning tool, so reprocessing the same run upserts instead of
// duplicating.
//
// Resources, Remediation, and Comments are independently optional: a nil
// collection means "not collected / not applicable" while an empty one means
// "collected, found none". Stores preserve that distinction (SQL NULL vs
// empty JSON array).
type Finding struct {
	AssessmentID   domain.AssessmentID `json:"-"`
	ID             domain.FindingID    `json:"findingId"`
	Severity       domain.Severity     `json:"severity"`
	StatusCode     string              `json:"statusCode"`
	StatusDetail   string              `json:"statusDetail"`
	RiskDetails    string              `json:"riskDetails"`
	Hidden         bool                `json:"hidden"`
	IsAIAssociated bool                `json:"isAIAssociated"`
	EventCode      string              `json:"eventCode,omitempty"`
	Remediation    *Remediation        `json:"remediation,omitempty"`
	Resources      []Resource          `json:"resources"`
	Comments       []Comment           `json:"comments"`
}

// Remediation is the scanner-provided fix guidance for a finding.
type Remediation struct {
	Desc       string   `json:"desc"`
	References []string `json:"references,omitempty"`
}

// Resource is one cloud resource a finding applies to.
type Resource struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
}

// Comment is a reviewer note on a finding. Immutable except for full-text
// replacement; the author is never reassigned.
type Comment struct {
	ID        domain.CommentID `json:"id"`
	AuthorID  string           `json:"authorId"`
	Text      string           `json:"text"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Association is one edge of the finding ↔ best-practice many-to-many
// relation. A pure 5-tuple: no payload, no back-references.
type Association struct {
	AssessmentID domain.AssessmentID   `json:"-"`
	FindingID    domain.FindingID      `json:"findingId"`
	Pillar       domain.PillarID       `json:"pillarId"`
	Question     domain.QuestionID     `json:"questionId"`
	BestPractice domain.BestPracticeID `json:"bestPracticeId"`
}

// BestPracticeRef is the key of the association target within the finding's
// assessment.
func (a Association) BestPracticeRef() domain.BestPracticeKey {
	return domain.BestPracticeKey{Pillar: a.Pillar, Question: a.Question, BestPractice: a.BestPractice}
}
