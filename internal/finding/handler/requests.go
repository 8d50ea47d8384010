package handler

import (
	"assessor/internal/finding/models"
	"assessor/pkg/domain"
)

// bulkUpsertRequest is the pipeline's scan run payload: findings plus the
// association edges the pipeline computed for them.
type bulkUpsertRequest struct {
	Findings []findingRequest `json:"findings"`
	Edges    []edgeRequest    `json:"edges"`
}

type findingRequest struct {
	FindingID      string              `json:"findingId"`
	Severity       string              `json:"severity"`
	StatusCode     string              `json:"statusCode"`
	StatusDetail   string              `json:"statusDetail"`
	RiskDetails    string              `json:"riskDetails"`
	IsAIAssociated bool                `json:"isAIAssociated"`
	EventCode      string              `json:"eventCode,omitempty"`
	Remediation    *remediationBody    `json:"remediation,omitempty"`
	Resources      []resourceBody      `json:"resources,omitempty"`
}

type remediationBody struct {
	Desc       string   `json:"desc"`
	References []string `json:"references,omitempty"`
}

type resourceBody struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
}

type edgeRequest struct {
	FindingID      string `json:"findingId"`
	PillarID       string `json:"pillarId"`
	QuestionID     string `json:"questionId"`
	BestPracticeID string `json:"bestPracticeId"`
}

func (r bulkUpsertRequest) parse(id domain.AssessmentID) ([]models.Finding, []models.Association, error) {
	findings := make([]models.Finding, 0, len(r.Findings))
	for _, f := range r.Findings {
		findingID, err := domain.ParseFindingID(f.FindingID)
		if err != nil {
			return nil, nil, err
		}
		severity, err := domain.ParseSeverity(f.Severity)
		if err != nil {
			return nil, nil, err
		}
		finding := models.Finding{
			AssessmentID:   id,
			ID:             findingID,
			Severity:       severity,
			StatusCode:     f.StatusCode,
			StatusDetail:   f.StatusDetail,
			RiskDetails:    f.RiskDetails,
			IsAIAssociated: f.IsAIAssociated,
			EventCode:      f.EventCode,
		}
		if f.Remediation != nil {
			finding.Remediation = &models.Remediation{Desc: f.Remediation.Desc, References: f.Remediation.References}
		}
		if f.Resources != nil {
			finding.Resources = make([]models.Resource, 0, len(f.Resources))
			for _, res := range f.Resources {
				finding.Resources = append(finding.Resources, models.Resource(res))
			}
		}
		findings = append(findings, finding)
	}

	edges := make([]models.Association, 0, len(r.Edges))
	for _, e := range r.Edges {
		findingID, err := domain.ParseFindingID(e.FindingID)
		if err != nil {
			return nil, nil, err
		}
		edges = append(edges, models.Association{
			AssessmentID: id,
			FindingID:    findingID,
			Pillar:       domain.PillarID(e.PillarID),
			Question:     domain.QuestionID(e.QuestionID),
			BestPractice: domain.BestPracticeID(e.BestPracticeID),
		})
	}
	return findings, edges, nil
}

type hiddenRequest struct {
	Hidden *bool `json:"hidden"`
}

type commentRequest struct {
	Text string `json:"text"`
}
