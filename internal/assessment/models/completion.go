package models

import (
	"math"

	"assessor/pkg/domain"
)

// Completion math lives here as pure functions over explicit inputs rather
// than being scattered across mutation sites. The flag interactions are the
// subtlest rules in the system and this is the single place they are stated.

// QuestionCompleted reports whether a question counts as done:
// the question is enabled AND (the reviewer declared that no best practice
// applies, OR every HIGH-risk best practice is checked). A question with no
// HIGH-risk best practices is vacuously complete.
func QuestionCompleted(q Question) bool {
	if q.Disabled {
		return false
	}
	if q.None {
		return true
	}
	for _, bp := range q.BestPractices {
		if bp.Risk == domain.SeverityHigh && !bp.Checked {
			return false
		}
	}
	return true
}

// PillarCompletion returns the rounded percentage of completed questions
// among the pillar's enabled questions. A pillar with zero enabled questions
// is 100% complete: there is nothing left to review, not a division fault.
func PillarCompletion(p Pillar) int {
	if p.Disabled {
		return 0
	}
	completed, total := countQuestions(p)
	if total == 0 {
		return 100
	}
	return roundPercent(completed, total)
}

// OverallCompletion aggregates the same ratio across all enabled pillars'
// enabled questions. Zero eligible questions yields 0 at this level: an
// assessment with nothing reviewable has made no progress.
func OverallCompletion(pillars []Pillar) int {
	var completed, total int
	for _, p := range pillars {
		if p.Disabled {
			continue
		}
		c, n := countQuestions(p)
		completed += c
		total += n
	}
	if total == 0 {
		return 0
	}
	return roundPercent(completed, total)
}

func countQuestions(p Pillar) (completed, total int) {
	for _, q := range p.Questions {
		if q.Disabled {
			continue
		}
		total++
		if QuestionCompleted(q) {
			completed++
		}
	}
	return completed, total
}

func roundPercent(part, whole int) int {
	return int(math.Round(100 * float64(part) / float64(whole)))
}
