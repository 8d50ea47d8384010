package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"assessor/internal/assessment/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
	txcontext "assessor/pkg/platform/tx"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the production content aggregate store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, a *models.Assessment) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		ex := s.execer(ctx)
		_, err := ex.ExecContext(ctx, `
			INSERT INTO assessments (
				assessment_id, org_domain, name, created_by, created_at, regions,
				export_region, role_arn, workflows, step, step_error, step_error_cause,
				raw_graph_data, graph_data, wafr_workload_arn, opportunity_id, folder_id
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			a.ID, a.OrgDomain, a.Name, a.CreatedBy, a.CreatedAt, pq.Array(a.Regions),
			nullString(a.ExportRegion), a.RoleArn, pq.Array(a.Workflows), a.Step,
			stepErrorColumns(a.StepError), stepErrorCauseColumn(a.StepError),
			nullJSON(a.RawGraphData), nullJSON(a.GraphData),
			nullString(a.WafrWorkloadArn), nullString(a.OpportunityID), folderColumn(a.Folder),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert assessment %s: %w", a.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert assessment %s: %w", a.ID, err)
		}
		for i := range a.Pillars {
			if err := s.insertPillar(ctx, a.ID, &a.Pillars[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Postgres) insertPillar(ctx context.Context, id domain.AssessmentID, p *models.Pillar) error {
	ex := s.execer(ctx)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO pillars (assessment_id, pillar_id, label, disabled, primary_id)
		VALUES ($1,$2,$3,$4,$5)`,
		id, p.ID, p.Label, p.Disabled, p.PrimaryID)
	if err != nil {
		return fmt.Errorf("insert pillar %s: %w", p.ID, err)
	}
	for i := range p.Questions {
		q := &p.Questions[i]
		_, err := ex.ExecContext(ctx, `
			INSERT INTO questions (assessment_id, pillar_id, question_id, label, disabled, none_applies, primary_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, p.ID, q.ID, q.Label, q.Disabled, q.None, q.PrimaryID)
		if err != nil {
			return fmt.Errorf("insert question %s: %w", q.ID, err)
		}
		for j := range q.BestPractices {
			bp := &q.BestPractices[j]
			_, err := ex.ExecContext(ctx, `
				INSERT INTO best_practices (assessment_id, pillar_id, question_id, best_practice_id, label, description, risk, checked, primary_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				id, p.ID, q.ID, bp.ID, bp.Label, bp.Description, bp.Risk, bp.Checked, bp.PrimaryID)
			if err != nil {
				return fmt.Errorf("insert best practice %s: %w", bp.ID, err)
			}
		}
	}
	return nil
}

const assessmentColumns = `
	assessment_id, org_domain, name, created_by, created_at, regions,
	export_region, role_arn, workflows, step, step_error, step_error_cause,
	raw_graph_data, graph_data, wafr_workload_arn, opportunity_id, folder_id`

func (s *Postgres) GetHeader(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE org_domain = $1 AND assessment_id = $2`,
		org, id)
	a, err := scanAssessment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	return a, nil
}

func (s *Postgres) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	a, err := s.GetHeader(ctx, org, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadTree(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Postgres) loadTree(ctx context.Context, a *models.Assessment) error {
	ex := s.execer(ctx)

	rows, err := ex.QueryContext(ctx, `
		SELECT pillar_id, label, disabled, primary_id
		FROM pillars WHERE assessment_id = $1 ORDER BY pillar_id`, a.ID)
	if err != nil {
		return fmt.Errorf("load pillars: %w", err)
	}
	defer rows.Close()
	pillarIdx := map[domain.PillarID]int{}
	for rows.Next() {
		var p models.Pillar
		p.AssessmentID = a.ID
		if err := rows.Scan(&p.ID, &p.Label, &p.Disabled, &p.PrimaryID); err != nil {
			return fmt.Errorf("scan pillar: %w", err)
		}
		pillarIdx[p.ID] = len(a.Pillars)
		a.Pillars = append(a.Pillars, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pillars: %w", err)
	}

	qRows, err := ex.QueryContext(ctx, `
		SELECT pillar_id, question_id, label, disabled, none_applies, primary_id
		FROM questions WHERE assessment_id = $1 ORDER BY pillar_id, question_id`, a.ID)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	defer qRows.Close()
	questionIdx := map[[2]string]int{}
	for qRows.Next() {
		var q models.Question
		q.AssessmentID = a.ID
		if err := qRows.Scan(&q.PillarID, &q.ID, &q.Label, &q.Disabled, &q.None, &q.PrimaryID); err != nil {
			return fmt.Errorf("scan question: %w", err)
		}
		pi, ok := pillarIdx[q.PillarID]
		if !ok {
			continue
		}
		questionIdx[[2]string{q.PillarID.String(), q.ID.String()}] = len(a.Pillars[pi].Questions)
		a.Pillars[pi].Questions = append(a.Pillars[pi].Questions, q)
	}
	if err := qRows.Err(); err != nil {
		return fmt.Errorf("iterate questions: %w", err)
	}

	bpRows, err := ex.QueryContext(ctx, `
		SELECT pillar_id, question_id, best_practice_id, label, description, risk, checked, primary_id
		FROM best_practices WHERE assessment_id = $1 ORDER BY pillar_id, question_id, best_practice_id`, a.ID)
	if err != nil {
		return fmt.Errorf("load best practices: %w", err)
	}
	defer bpRows.Close()
	for bpRows.Next() {
		var bp models.BestPractice
		bp.AssessmentID = a.ID
		if err := bpRows.Scan(&bp.PillarID, &bp.QuestionID, &bp.ID, &bp.Label, &bp.Description, &bp.Risk, &bp.Checked, &bp.PrimaryID); err != nil {
			return fmt.Errorf("scan best practice: %w", err)
		}
		pi, ok := pillarIdx[bp.PillarID]
		if !ok {
			continue
		}
		qi, ok := questionIdx[[2]string{bp.PillarID.String(), bp.QuestionID.String()}]
		if !ok {
			continue
		}
		q := &a.Pillars[pi].Questions[qi]
		q.BestPractices = append(q.BestPractices, bp)
	}
	return bpRows.Err()
}

func (s *Postgres) List(ctx context.Context, org domain.OrgDomain, p ListParams) ([]models.Assessment, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + assessmentColumns + ` FROM assessments WHERE org_domain = $1`)
	args := []any{org}

	if p.Folder != nil {
		args = append(args, *p.Folder)
		fmt.Fprintf(&query, ` AND folder_id = $%d`, len(args))
	}
	if p.AfterCreatedAt != "" {
		args = append(args, p.AfterCreatedAt, p.AfterID)
		// Newest-first keyset: strictly older rows, ties broken by id.
		fmt.Fprintf(&query, ` AND (created_at, assessment_id) < ($%d::timestamptz, $%d)`, len(args)-1, len(args))
	}
	args = append(args, p.Limit)
	fmt.Fprintf(&query, ` ORDER BY created_at DESC, assessment_id DESC LIMIT $%d`, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []models.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Postgres) Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM assessments WHERE org_domain = $1 AND assessment_id = $2`, org, id)
	if err != nil {
		return fmt.Errorf("delete assessment %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Postgres) SetPillarDisabled(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, disabled bool) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE pillars p SET disabled = $1
		FROM assessments a
		WHERE p.assessment_id = a.assessment_id
		  AND a.org_domain = $2 AND p.assessment_id = $3 AND p.pillar_id = $4`,
		disabled, org, id, pillar)
	if err != nil {
		return fmt.Errorf("set pillar disabled: %w", err)
	}
	return requireRow(res, id)
}

func (s *Postgres) SetQuestionFlags(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, flags models.QuestionFlags) error {
	if flags.None == nil && flags.Disabled == nil {
		return nil
	}
	// One UPDATE per flag keeps last-writer-wins at single-flag granularity:
	// concurrent writers touching different flags both survive.
	if flags.None != nil {
		res, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE questions q SET none_applies = $1
			FROM assessments a
			WHERE q.assessment_id = a.assessment_id
			  AND a.org_domain = $2 AND q.assessment_id = $3 AND q.pillar_id = $4 AND q.question_id = $5`,
			*flags.None, org, id, pillar, question)
		if err != nil {
			return fmt.Errorf("set question none: %w", err)
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
	}
	if flags.Disabled != nil {
		res, err := s.execer(ctx).ExecContext(ctx, `
			UPDATE questions q SET disabled = $1
			FROM assessments a
			WHERE q.assessment_id = a.assessment_id
			  AND a.org_domain = $2 AND q.assessment_id = $3 AND q.pillar_id = $4 AND q.question_id = $5`,
			*flags.Disabled, org, id, pillar, question)
		if err != nil {
			return fmt.Errorf("set question disabled: %w", err)
		}
		if err := requireRow(res, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) SetBestPracticeChecked(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, bp domain.BestPracticeID, checked bool) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE best_practices b SET checked = $1
		FROM assessments a
		WHERE b.assessment_id = a.assessment_id
		  AND a.org_domain = $2 AND b.assessment_id = $3 AND b.pillar_id = $4
		  AND b.question_id = $5 AND b.best_practice_id = $6`,
		checked, org, id, pillar, question, bp)
	if err != nil {
		return fmt.Errorf("set best practice checked: %w", err)
	}
	return requireRow(res, id)
}

func (s *Postgres) UpdateStep(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, from, to domain.AssessmentStep, stepErr *models.StepError) error {
	var errMsg, errCause sql.NullString
	if stepErr != nil {
		errMsg = sql.NullString{String: stepErr.Error, Valid: true}
		errCause = sql.NullString{String: stepErr.Cause, Valid: stepErr.Cause != ""}
	}
	// Compare-and-swap on the step the caller validated against, so a
	// concurrent transition cannot commit on top of a stale snapshot and walk
	// the machine out of a terminal state.
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE assessments SET step = $1, step_error = $2, step_error_cause = $3
		WHERE org_domain = $4 AND assessment_id = $5 AND step = $6`,
		to, errMsg, errCause, org, id, from)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var one int
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT 1 FROM assessments WHERE org_domain = $1 AND assessment_id = $2`,
			org, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("recheck assessment %s: %w", id, err)
		}
		return fmt.Errorf("assessment %s left step %s concurrently: %w", id, from, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Postgres) SetExportRegion(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, region string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE assessments SET export_region = $1 WHERE org_domain = $2 AND assessment_id = $3`,
		region, org, id)
	if err != nil {
		return fmt.Errorf("set export region: %w", err)
	}
	return requireRow(res, id)
}

func (s *Postgres) SetFolder(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, folder *domain.FolderID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE assessments SET folder_id = $1 WHERE org_domain = $2 AND assessment_id = $3`,
		folderColumn(folder), org, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("folder: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("set folder: %w", err)
	}
	return requireRow(res, id)
}

func scanAssessment(row interface{ Scan(...any) error }) (*models.Assessment, error) {
	var (
		a               models.Assessment
		exportRegion    sql.NullString
		stepErr         sql.NullString
		stepErrCause    sql.NullString
		rawGraph        []byte
		graph           []byte
		wafrWorkloadArn sql.NullString
		opportunityID   sql.NullString
		folderID        sql.NullString
	)
	err := row.Scan(&a.ID, &a.OrgDomain, &a.Name, &a.CreatedBy, &a.CreatedAt,
		pq.Array(&a.Regions), &exportRegion, &a.RoleArn, pq.Array(&a.Workflows),
		&a.Step, &stepErr, &stepErrCause, &rawGraph, &graph,
		&wafrWorkloadArn, &opportunityID, &folderID)
	if err != nil {
		return nil, err
	}
	a.ExportRegion = exportRegion.String
	if stepErr.Valid {
		a.StepError = &models.StepError{Error: stepErr.String, Cause: stepErrCause.String}
	}
	a.RawGraphData = json.RawMessage(rawGraph)
	a.GraphData = json.RawMessage(graph)
	a.WafrWorkloadArn = wafrWorkloadArn.String
	a.OpportunityID = opportunityID.String
	if folderID.Valid {
		f := domain.FolderID(folderID.String)
		a.Folder = &f
	}
	return &a, nil
}

func requireRow(res sql.Result, id domain.AssessmentID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func folderColumn(f *domain.FolderID) sql.NullString {
	if f == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: f.String(), Valid: true}
}

func stepErrorColumns(e *models.StepError) sql.NullString {
	if e == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: e.Error, Valid: true}
}

func stepErrorCauseColumn(e *models.StepError) sql.NullString {
	if e == nil || e.Cause == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: e.Cause, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
