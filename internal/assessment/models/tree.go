package models

import "assessor/pkg/domain"

// Pillar groups review questions under an assessment. Disabling a pillar
// leaves its questions untouched; it only excludes them from completion math.
type Pillar struct {
	AssessmentID domain.AssessmentID `json:"-"`
	ID           domain.PillarID     `json:"pillarId"`
	Label        string              `json:"label"`
	Disabled     bool                `json:"disabled"`
	PrimaryID    string              `json:"primaryId"`

	Questions []Question `json:"questions,omitempty"`
}

// Question is a single review question under a pillar.
//
// None and Disabled are independent reviewer flags: None declares "no best
// practice applies" and overrides the checked state of the question's best
// practices in completion math without ever clearing those flags, so turning
// None back off restores the prior progress.
type Question struct {
	AssessmentID domain.AssessmentID `json:"-"`
	PillarID     domain.PillarID     `json:"-"`
	ID           domain.QuestionID   `json:"questionId"`
	Label        string              `json:"label"`
	Disabled     bool                `json:"disabled"`
	None         bool                `json:"none"`
	PrimaryID    string              `json:"primaryId"`

	BestPractices []BestPractice `json:"bestPractices,omitempty"`
}

// BestPractice is one checkable recommendation under a question.
// FindingAmount is informational only: it counts associated, non-hidden
// findings and never feeds completion math or the checked flag.
type BestPractice struct {
	AssessmentID  domain.AssessmentID   `json:"-"`
	PillarID      domain.PillarID       `json:"-"`
	QuestionID    domain.QuestionID     `json:"-"`
	ID            domain.BestPracticeID `json:"bestPracticeId"`
	Label         string                `json:"label"`
	Description   string                `json:"description"`
	Risk          domain.Severity       `json:"risk"`
	Checked       bool                  `json:"checked"`
	PrimaryID     string                `json:"primaryId"`
	FindingAmount int                   `json:"findingAmount"`
}

// QuestionFlags carries the optional point mutations for a question. Nil
// means "leave unchanged" so concurrent updates to different flags both
// survive.
type QuestionFlags struct {
	None     *bool
	Disabled *bool
}
