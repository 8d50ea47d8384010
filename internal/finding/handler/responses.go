package handler

import (
	"time"

	"assessor/internal/finding/models"
	"assessor/internal/finding/service"
)

type findingResponse struct {
	FindingID      string           `json:"findingId"`
	Severity       string           `json:"severity"`
	StatusCode     string           `json:"statusCode"`
	StatusDetail   string           `json:"statusDetail"`
	RiskDetails    string           `json:"riskDetails"`
	Hidden         bool             `json:"hidden"`
	IsAIAssociated bool             `json:"isAIAssociated"`
	EventCode      string           `json:"eventCode,omitempty"`
	Remediation    *remediationBody `json:"remediation,omitempty"`
	// No omitempty: a null resources array means the scanner never reported
	// resources, an empty one means it reported none.
	Resources []resourceBody `json:"resources"`
	Comments  []commentBody  `json:"comments"`
}

type commentBody struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func fromFinding(f *models.Finding) findingResponse {
	resp := findingResponse{
		FindingID:      f.ID.String(),
		Severity:       f.Severity.String(),
		StatusCode:     f.StatusCode,
		StatusDetail:   f.StatusDetail,
		RiskDetails:    f.RiskDetails,
		Hidden:         f.Hidden,
		IsAIAssociated: f.IsAIAssociated,
		EventCode:      f.EventCode,
	}
	if f.Remediation != nil {
		resp.Remediation = &remediationBody{Desc: f.Remediation.Desc, References: f.Remediation.References}
	}
	if f.Resources != nil {
		resp.Resources = make([]resourceBody, 0, len(f.Resources))
		for _, r := range f.Resources {
			resp.Resources = append(resp.Resources, resourceBody(r))
		}
	}
	resp.Comments = make([]commentBody, 0, len(f.Comments))
	for _, c := range f.Comments {
		resp.Comments = append(resp.Comments, fromComment(&c))
	}
	return resp
}

func fromComment(c *models.Comment) commentBody {
	return commentBody{
		ID:        c.ID.String(),
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}

type listResponse struct {
	Findings   []findingResponse `json:"findings"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

func fromFindingPage(page *service.Page) listResponse {
	resp := listResponse{NextCursor: page.NextCursor, Findings: []findingResponse{}}
	for i := range page.Findings {
		resp.Findings = append(resp.Findings, fromFinding(&page.Findings[i]))
	}
	return resp
}
