package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

func newTestAssessment(t *testing.T) *Assessment {
	t.Helper()
	a, err := NewAssessment("acme.example", "a-1", "prod account", "reviewer@acme.example",
		"arn:aws:iam::123456789012:role/assessor", []string{"eu-west-1"}, nil, time.Now())
	require.NoError(t, err)
	return a
}

func TestNewAssessment(t *testing.T) {
	t.Run("starts at scanning started", func(t *testing.T) {
		a := newTestAssessment(t)
		assert.Equal(t, domain.StepScanningStarted, a.Step)
		assert.False(t, a.EditsAllowed())
	})

	t.Run("rejects missing identity", func(t *testing.T) {
		_, err := NewAssessment("", "a-1", "n", "u", "arn", nil, nil, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = NewAssessment("acme.example", "", "n", "u", "arn", nil, nil, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestStepMachine(t *testing.T) {
	t.Run("full pipeline run reaches finished", func(t *testing.T) {
		a := newTestAssessment(t)
		for _, next := range []domain.AssessmentStep{
			domain.StepPreparingAssociations,
			domain.StepAssociatingFindings,
			domain.StepFinished,
		} {
			require.NoError(t, a.CanAdvanceTo(next))
			a.ApplyStep(next, nil)
		}
		assert.True(t, a.EditsAllowed())
	})

	t.Run("skipping a stage is illegal", func(t *testing.T) {
		a := newTestAssessment(t)
		err := a.CanAdvanceTo(domain.StepFinished)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
	})

	t.Run("errored records the cause and is terminal", func(t *testing.T) {
		a := newTestAssessment(t)
		require.NoError(t, a.CanAdvanceTo(domain.StepErrored))
		a.ApplyStep(domain.StepErrored, &StepError{Error: "scan failed", Cause: "access denied"})
		require.NotNil(t, a.StepError)
		assert.Equal(t, "scan failed", a.StepError.Error)

		err := a.CanAdvanceTo(domain.StepScanningStarted)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
	})

	t.Run("rescan resets only from terminal steps", func(t *testing.T) {
		a := newTestAssessment(t)
		err := a.CanRescan()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

		a.ApplyStep(domain.StepErrored, &StepError{Error: "scan failed"})
		require.NoError(t, a.CanRescan())
		a.ApplyRescan()
		assert.Equal(t, domain.StepScanningStarted, a.Step)
		assert.Nil(t, a.StepError)
	})
}
