package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/finding/models"
	"assessor/pkg/domain"
)

func TestFindingResponseKeepsNullVsEmptyResources(t *testing.T) {
	base := models.Finding{
		ID:           "open-sg|eu-west-1",
		Severity:     domain.SeverityHigh,
		StatusCode:   "FAIL",
		StatusDetail: "open security group",
	}

	unreported := base
	unreported.Resources = nil
	reported := base
	reported.Resources = []models.Resource{}

	rawUnreported, err := json.Marshal(fromFinding(&unreported))
	require.NoError(t, err)
	rawReported, err := json.Marshal(fromFinding(&reported))
	require.NoError(t, err)

	// A scanner that never reported resources renders null; one that reported
	// an empty set renders []. The two bodies must stay distinguishable.
	assert.Contains(t, string(rawUnreported), `"resources":null`)
	assert.Contains(t, string(rawReported), `"resources":[]`)
	assert.NotEqual(t, rawUnreported, rawReported)
}

func TestFindingResponseCommentsNeverAbsent(t *testing.T) {
	f := models.Finding{ID: "open-sg|eu-west-1", Severity: domain.SeverityLow, StatusCode: "FAIL"}
	raw, err := json.Marshal(fromFinding(&f))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"comments":[]`)
}
