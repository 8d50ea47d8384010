package handler

import (
	"strings"

	"assessor/internal/assessment/models"
	"assessor/internal/assessment/service"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

// createRequest is the HTTP request body for POST /assessments. The pillar
// tree is the catalog snapshot the scanner resolved for this account.
type createRequest struct {
	AssessmentID string          `json:"assessmentId"`
	Name         string          `json:"name"`
	RoleArn      string          `json:"roleArn"`
	Regions      []string        `json:"regions"`
	Workflows    []string        `json:"workflows,omitempty"`
	Pillars      []pillarRequest `json:"pillars,omitempty"`
}

type pillarRequest struct {
	PillarID  string            `json:"pillarId"`
	Label     string            `json:"label"`
	PrimaryID string            `json:"primaryId"`
	Questions []questionRequest `json:"questions,omitempty"`
}

type questionRequest struct {
	QuestionID    string                `json:"questionId"`
	Label         string                `json:"label"`
	PrimaryID     string                `json:"primaryId"`
	BestPractices []bestPracticeRequest `json:"bestPractices,omitempty"`
}

type bestPracticeRequest struct {
	BestPracticeID string `json:"bestPracticeId"`
	Label          string `json:"label"`
	Description    string `json:"description,omitempty"`
	Risk           string `json:"risk"`
	PrimaryID      string `json:"primaryId"`
}

func (r *createRequest) validate() error {
	r.AssessmentID = strings.TrimSpace(r.AssessmentID)
	if r.AssessmentID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "assessmentId is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if strings.TrimSpace(r.RoleArn) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "roleArn is required")
	}
	if len(r.Regions) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one region is required")
	}
	for _, p := range r.Pillars {
		for _, q := range p.Questions {
			for _, bp := range q.BestPractices {
				if _, err := domain.ParseSeverity(bp.Risk); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *createRequest) toParams() service.CreateParams {
	id := domain.AssessmentID(r.AssessmentID)
	params := service.CreateParams{
		ID:        id,
		Name:      r.Name,
		RoleArn:   r.RoleArn,
		Regions:   r.Regions,
		Workflows: r.Workflows,
	}
	for _, p := range r.Pillars {
		pillar := models.Pillar{
			AssessmentID: id,
			ID:           domain.PillarID(p.PillarID),
			Label:        p.Label,
			PrimaryID:    p.PrimaryID,
		}
		for _, q := range p.Questions {
			question := models.Question{
				AssessmentID: id,
				PillarID:     pillar.ID,
				ID:           domain.QuestionID(q.QuestionID),
				Label:        q.Label,
				PrimaryID:    q.PrimaryID,
			}
			for _, bp := range q.BestPractices {
				severity, _ := domain.ParseSeverity(bp.Risk)
				question.BestPractices = append(question.BestPractices, models.BestPractice{
					AssessmentID: id,
					PillarID:     pillar.ID,
					QuestionID:   question.ID,
					ID:           domain.BestPracticeID(bp.BestPracticeID),
					Label:        bp.Label,
					Description:  bp.Description,
					Risk:         severity,
					PrimaryID:    bp.PrimaryID,
				})
			}
			pillar.Questions = append(pillar.Questions, question)
		}
		params.Pillars = append(params.Pillars, pillar)
	}
	return params
}

// stepRequest is the body for POST /assessments/{id}/step.
type stepRequest struct {
	Step  string `json:"step"`
	Error *struct {
		Error string `json:"error"`
		Cause string `json:"cause,omitempty"`
	} `json:"error,omitempty"`
}

func (r stepRequest) parse() (domain.AssessmentStep, *models.StepError, error) {
	step, err := domain.ParseAssessmentStep(r.Step)
	if err != nil {
		return "", nil, err
	}
	var stepErr *models.StepError
	if r.Error != nil {
		stepErr = &models.StepError{Error: r.Error.Error, Cause: r.Error.Cause}
	}
	return step, stepErr, nil
}

type exportRegionRequest struct {
	ExportRegion string `json:"exportRegion"`
}

type assignFolderRequest struct {
	FolderID *string `json:"folderId"`
}

type disabledRequest struct {
	Disabled *bool `json:"disabled"`
}

type questionFlagsRequest struct {
	None     *bool `json:"none"`
	Disabled *bool `json:"disabled"`
}

func (r questionFlagsRequest) toFlags() models.QuestionFlags {
	return models.QuestionFlags{None: r.None, Disabled: r.Disabled}
}

type checkedRequest struct {
	Checked *bool `json:"checked"`
}
