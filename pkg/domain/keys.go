package domain

// BestPracticeKey addresses a best practice within one assessment. Used as a
// map key for per-best-practice aggregates such as finding counts.
type BestPracticeKey struct {
	Pillar       PillarID
	Question     QuestionID
	BestPractice BestPracticeID
}
