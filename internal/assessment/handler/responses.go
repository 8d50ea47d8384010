package handler

import (
	"encoding/json"
	"time"

	"assessor/internal/assessment/models"
	"assessor/internal/assessment/service"
)

// assessmentResponse is the full tree with completion percentages computed
// at response time. Completion never lives in the store.
type assessmentResponse struct {
	AssessmentID    string           `json:"assessmentId"`
	Name            string           `json:"name"`
	CreatedBy       string           `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	Regions         []string         `json:"regions"`
	ExportRegion    string           `json:"exportRegion,omitempty"`
	RoleArn         string           `json:"roleArn"`
	Workflows       []string         `json:"workflows,omitempty"`
	Step            string           `json:"step"`
	Error           *stepErrorBody   `json:"error,omitempty"`
	RawGraphData    json.RawMessage  `json:"rawGraphData,omitempty"`
	GraphData       json.RawMessage  `json:"graphData,omitempty"`
	WafrWorkloadArn string           `json:"wafrWorkloadArn,omitempty"`
	OpportunityID   string           `json:"opportunityId,omitempty"`
	FolderID        string           `json:"folderId,omitempty"`
	Completion      int              `json:"completion"`
	Pillars         []pillarResponse `json:"pillars,omitempty"`
}

type stepErrorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

type pillarResponse struct {
	PillarID   string             `json:"pillarId"`
	Label      string             `json:"label"`
	Disabled   bool               `json:"disabled"`
	PrimaryID  string             `json:"primaryId"`
	Completion int                `json:"completion"`
	Questions  []questionResponse `json:"questions,omitempty"`
}

type questionResponse struct {
	QuestionID    string                 `json:"questionId"`
	Label         string                 `json:"label"`
	Disabled      bool                   `json:"disabled"`
	None          bool                   `json:"none"`
	PrimaryID     string                 `json:"primaryId"`
	Completed     bool                   `json:"completed"`
	BestPractices []bestPracticeResponse `json:"bestPractices,omitempty"`
}

type bestPracticeResponse struct {
	BestPracticeID string `json:"bestPracticeId"`
	Label          string `json:"label"`
	Description    string `json:"description,omitempty"`
	Risk           string `json:"risk"`
	Checked        bool   `json:"checked"`
	PrimaryID      string `json:"primaryId"`
	FindingAmount  int    `json:"findingAmount"`
}

func fromAssessment(a *models.Assessment) *assessmentResponse {
	resp := &assessmentResponse{
		AssessmentID:    a.ID.String(),
		Name:            a.Name,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
		Regions:         a.Regions,
		ExportRegion:    a.ExportRegion,
		RoleArn:         a.RoleArn,
		Workflows:       a.Workflows,
		Step:            a.Step.String(),
		RawGraphData:    a.RawGraphData,
		GraphData:       a.GraphData,
		WafrWorkloadArn: a.WafrWorkloadArn,
		OpportunityID:   a.OpportunityID,
		Completion:      models.OverallCompletion(a.Pillars),
	}
	if a.StepError != nil {
		resp.Error = &stepErrorBody{Error: a.StepError.Error, Cause: a.StepError.Cause}
	}
	if a.Folder != nil {
		resp.FolderID = a.Folder.String()
	}
	for _, p := range a.Pillars {
		resp.Pillars = append(resp.Pillars, fromPillar(p))
	}
	return resp
}

func fromPillar(p models.Pillar) pillarResponse {
	resp := pillarResponse{
		PillarID:   p.ID.String(),
		Label:      p.Label,
		Disabled:   p.Disabled,
		PrimaryID:  p.PrimaryID,
		Completion: models.PillarCompletion(p),
	}
	for _, q := range p.Questions {
		qr := questionResponse{
			QuestionID: q.ID.String(),
			Label:      q.Label,
			Disabled:   q.Disabled,
			None:       q.None,
			PrimaryID:  q.PrimaryID,
			Completed:  models.QuestionCompleted(q),
		}
		for _, bp := range q.BestPractices {
			qr.BestPractices = append(qr.BestPractices, bestPracticeResponse{
				BestPracticeID: bp.ID.String(),
				Label:          bp.Label,
				Description:    bp.Description,
				Risk:           bp.Risk.String(),
				Checked:        bp.Checked,
				PrimaryID:      bp.PrimaryID,
				FindingAmount:  bp.FindingAmount,
			})
		}
		resp.Questions = append(resp.Questions, qr)
	}
	return resp
}

// listResponse returns headers only; trees are fetched per assessment.
type listResponse struct {
	Assessments []assessmentHeaderResponse `json:"assessments"`
	NextCursor  string                     `json:"nextCursor,omitempty"`
}

type assessmentHeaderResponse struct {
	AssessmentID string    `json:"assessmentId"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	Step         string    `json:"step"`
	FolderID     string    `json:"folderId,omitempty"`
}

func fromAssessmentPage(page *service.Page) listResponse {
	resp := listResponse{NextCursor: page.NextCursor, Assessments: []assessmentHeaderResponse{}}
	for _, a := range page.Assessments {
		header := assessmentHeaderResponse{
			AssessmentID: a.ID.String(),
			Name:         a.Name,
			CreatedBy:    a.CreatedBy,
			CreatedAt:    a.CreatedAt,
			Step:         a.Step.String(),
		}
		if a.Folder != nil {
			header.FolderID = a.Folder.String()
		}
		resp.Assessments = append(resp.Assessments, header)
	}
	return resp
}
