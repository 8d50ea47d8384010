// Package reviewtool talks to the external well-architected review service
// that stores milestone snapshots. Calls assume the assessment's role so the
// lookup happens in the customer account, in the region the caller resolved.
package reviewtool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/wellarchitected"
	"github.com/aws/aws-sdk-go-v2/service/wellarchitected/types"

	assessment "assessor/internal/assessment/models"
	"assessor/internal/history/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

const lensAlias = "wellarchitected"

// Target addresses one workload in the upstream tool.
type Target struct {
	Region      string
	RoleArn     string
	WorkloadArn string
}

// Client is the production review-tool client.
type Client struct {
	base aws.Config
}

// New constructs a client from the service's base AWS configuration.
// Per-call credentials are derived by assuming the target's role.
func New(cfg aws.Config) *Client {
	return &Client{base: cfg}
}

func (c *Client) api(target Target) *wellarchitected.Client {
	cfg := c.base.Copy()
	cfg.Region = target.Region
	if target.RoleArn != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(c.base), target.RoleArn)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return wellarchitected.NewFromConfig(cfg)
}

// GetMilestone fetches one snapshot with its full answer tree. The tree is
// rebuilt into the local pillar/question/best-practice shape;
// findingAmount stays zero because findings are never re-associated to a
// snapshot.
func (c *Client) GetMilestone(ctx context.Context, target Target, id domain.MilestoneID) (*models.Milestone, error) {
	api := c.api(target)
	workloadID, err := workloadIDFromArn(target.WorkloadArn)
	if err != nil {
		return nil, err
	}

	out, err := api.GetMilestone(ctx, &wellarchitected.GetMilestoneInput{
		WorkloadId:      aws.String(workloadID),
		MilestoneNumber: aws.Int32(int32(id)),
	})
	if err != nil {
		return nil, translateUpstreamErr(err)
	}

	m := &models.Milestone{ID: id}
	if out.Milestone != nil {
		m.Name = aws.ToString(out.Milestone.MilestoneName)
		m.RecordedAt = aws.ToTime(out.Milestone.RecordedAt)
	}

	pillars, err := c.milestoneTree(ctx, api, workloadID, int32(id))
	if err != nil {
		return nil, err
	}
	m.Pillars = pillars
	return m, nil
}

// ListMilestones pages the upstream snapshot listing. The returned token is
// the upstream continuation token, empty when exhausted.
func (c *Client) ListMilestones(ctx context.Context, target Target, nextToken string, limit int) ([]models.MilestoneSummary, string, error) {
	workloadID, err := workloadIDFromArn(target.WorkloadArn)
	if err != nil {
		return nil, "", err
	}

	in := &wellarchitected.ListMilestonesInput{
		WorkloadId: aws.String(workloadID),
		MaxResults: aws.Int32(int32(limit)),
	}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}
	out, err := c.api(target).ListMilestones(ctx, in)
	if err != nil {
		return nil, "", translateUpstreamErr(err)
	}

	summaries := make([]models.MilestoneSummary, 0, len(out.MilestoneSummaries))
	for _, s := range out.MilestoneSummaries {
		summaries = append(summaries, models.MilestoneSummary{
			ID:         domain.MilestoneID(aws.ToInt32(s.MilestoneNumber)),
			Name:       aws.ToString(s.MilestoneName),
			RecordedAt: aws.ToTime(s.RecordedAt),
		})
	}
	return summaries, aws.ToString(out.NextToken), nil
}

// milestoneTree rebuilds the pillar tree from the snapshot's answers.
// Ordering follows the upstream listing, which is stable per lens version.
func (c *Client) milestoneTree(ctx context.Context, api *wellarchitected.Client, workloadID string, milestone int32) ([]assessment.Pillar, error) {
	var (
		pillars   []assessment.Pillar
		indexByID = make(map[domain.PillarID]int)
		token     *string
	)
	for {
		out, err := api.ListAnswers(ctx, &wellarchitected.ListAnswersInput{
			WorkloadId:      aws.String(workloadID),
			LensAlias:       aws.String(lensAlias),
			MilestoneNumber: aws.Int32(milestone),
			NextToken:       token,
		})
		if err != nil {
			return nil, translateUpstreamErr(err)
		}
		for _, a := range out.AnswerSummaries {
			pid := domain.PillarID(aws.ToString(a.PillarId))
			idx, ok := indexByID[pid]
			if !ok {
				idx = len(pillars)
				indexByID[pid] = idx
				pillars = append(pillars, assessment.Pillar{ID: pid, Label: string(pid)})
			}
			pillars[idx].Questions = append(pillars[idx].Questions, answerToQuestion(pid, a))
		}
		if aws.ToString(out.NextToken) == "" {
			return pillars, nil
		}
		token = out.NextToken
	}
}

func answerToQuestion(pillar domain.PillarID, a types.AnswerSummary) assessment.Question {
	q := assessment.Question{
		PillarID: pillar,
		ID:       domain.QuestionID(aws.ToString(a.QuestionId)),
		Label:    aws.ToString(a.QuestionTitle),
		Disabled: !aws.ToBool(a.IsApplicable),
	}
	selected := make(map[string]bool, len(a.SelectedChoices))
	for _, choice := range a.SelectedChoices {
		selected[choice] = true
	}
	for _, choice := range a.Choices {
		id := aws.ToString(choice.ChoiceId)
		q.BestPractices = append(q.BestPractices, assessment.BestPractice{
			PillarID:   pillar,
			QuestionID: q.ID,
			ID:         domain.BestPracticeID(id),
			Label:      aws.ToString(choice.Title),
			Risk:       domain.SeverityUnknown,
			Checked:    selected[id],
		})
	}
	return q
}

func workloadIDFromArn(arn string) (string, error) {
	idx := strings.LastIndex(arn, "/")
	if arn == "" || idx < 0 || idx == len(arn)-1 {
		return "", fmt.Errorf("workload arn %q: %w", arn, sentinel.ErrNotFound)
	}
	return arn[idx+1:], nil
}

func translateUpstreamErr(err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("upstream: %w", sentinel.ErrNotFound)
	}
	return fmt.Errorf("review tool: %w: %v", sentinel.ErrUnavailable, err)
}
