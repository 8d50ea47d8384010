package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"assessor/internal/finding/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
	txcontext "assessor/pkg/platform/tx"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the production association graph store.
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

func (s *Postgres) BulkUpsert(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findings []models.Finding, edges []models.Association) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.requireAssessment(ctx, org, id); err != nil {
			return err
		}
		ex := s.execer(ctx)
		for i := range findings {
			f := &findings[i]
			remediation, err := nullableJSON(f.Remediation, f.Remediation == nil)
			if err != nil {
				return fmt.Errorf("marshal remediation for %s: %w", f.ID, err)
			}
			resources, err := nullableJSON(f.Resources, f.Resources == nil)
			if err != nil {
				return fmt.Errorf("marshal resources for %s: %w", f.ID, err)
			}
			_, err = ex.ExecContext(ctx, `
				INSERT INTO findings (
					assessment_id, finding_id, severity, status_code, status_detail,
					risk_details, hidden, is_ai_associated, event_code, remediation, resources
				)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
				ON CONFLICT (assessment_id, finding_id) DO UPDATE SET
					severity = EXCLUDED.severity,
					status_code = EXCLUDED.status_code,
					status_detail = EXCLUDED.status_detail,
					risk_details = EXCLUDED.risk_details,
					is_ai_associated = EXCLUDED.is_ai_associated,
					event_code = EXCLUDED.event_code,
					remediation = EXCLUDED.remediation,
					resources = EXCLUDED.resources`,
				id, f.ID, f.Severity, f.StatusCode, f.StatusDetail,
				f.RiskDetails, f.Hidden, f.IsAIAssociated, nullString(f.EventCode),
				remediation, resources)
			if err != nil {
				return fmt.Errorf("upsert finding %s: %w", f.ID, err)
			}
		}
		for _, e := range edges {
			_, err := ex.ExecContext(ctx, `
				INSERT INTO finding_best_practices (assessment_id, finding_id, pillar_id, question_id, best_practice_id)
				VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT DO NOTHING`,
				id, e.FindingID, e.Pillar, e.Question, e.BestPractice)
			if err != nil {
				return fmt.Errorf("insert association for %s: %w", e.FindingID, err)
			}
		}
		return nil
	})
}

const findingColumns = `
	f.finding_id, f.severity, f.status_code, f.status_detail, f.risk_details,
	f.hidden, f.is_ai_associated, f.event_code, f.remediation, f.resources`

func (s *Postgres) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) (*models.Finding, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+findingColumns+`
		FROM findings f
		JOIN assessments a ON a.assessment_id = f.assessment_id
		WHERE a.org_domain = $1 AND f.assessment_id = $2 AND f.finding_id = $3`,
		org, id, findingID)
	f, err := scanFinding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("finding %s: %w", findingID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get finding %s: %w", findingID, err)
	}
	f.AssessmentID = id
	if err := s.loadComments(ctx, id, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Postgres) ListForBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, key domain.BestPracticeKey, p ListParams) ([]models.Finding, error) {
	query := strings.Builder{}
	query.WriteString(`
		SELECT ` + findingColumns + `
		FROM findings f
		JOIN assessments a ON a.assessment_id = f.assessment_id
		JOIN finding_best_practices j
		  ON j.assessment_id = f.assessment_id AND j.finding_id = f.finding_id
		WHERE a.org_domain = $1 AND f.assessment_id = $2
		  AND j.pillar_id = $3 AND j.question_id = $4 AND j.best_practice_id = $5`)
	args := []any{org, id, key.Pillar, key.Question, key.BestPractice}

	if !p.ShowHidden {
		query.WriteString(` AND NOT f.hidden`)
	}
	if p.SearchTerm != "" {
		args = append(args, "%"+escapeLike(p.SearchTerm)+"%")
		fmt.Fprintf(&query, ` AND (f.status_detail ILIKE $%[1]d OR f.risk_details ILIKE $%[1]d
			OR EXISTS (
				SELECT 1 FROM jsonb_array_elements(COALESCE(f.resources, '[]'::jsonb)) r
				WHERE r->>'name' ILIKE $%[1]d
			))`, len(args))
	}
	if p.AfterID != "" {
		args = append(args, p.AfterID)
		fmt.Fprintf(&query, ` AND f.finding_id > $%d`, len(args))
	}
	args = append(args, p.Limit)
	fmt.Fprintf(&query, ` ORDER BY f.finding_id LIMIT $%d`, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.AssessmentID = id
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadComments(ctx, id, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Postgres) Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) error {
	// Association rows vanish with the finding through ON DELETE CASCADE,
	// inside the same statement's transaction.
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM findings f
		USING assessments a
		WHERE f.assessment_id = a.assessment_id
		  AND a.org_domain = $1 AND f.assessment_id = $2 AND f.finding_id = $3`,
		org, id, findingID)
	if err != nil {
		return fmt.Errorf("delete finding %s: %w", findingID, err)
	}
	return requireRow(res, findingID)
}

func (s *Postgres) SetHidden(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, hidden bool) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE findings f SET hidden = $1
		FROM assessments a
		WHERE f.assessment_id = a.assessment_id
		  AND a.org_domain = $2 AND f.assessment_id = $3 AND f.finding_id = $4`,
		hidden, org, id, findingID)
	if err != nil {
		return fmt.Errorf("set finding hidden: %w", err)
	}
	return requireRow(res, findingID)
}

func (s *Postgres) AddComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, c models.Comment) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.requireFinding(ctx, org, id, findingID); err != nil {
			return err
		}
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO finding_comments (assessment_id, finding_id, comment_id, author_id, body, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			id, findingID, c.ID.String(), c.AuthorID, c.Text, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
}

func (s *Postgres) UpdateComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID, text string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE finding_comments c SET body = $1
		FROM assessments a
		WHERE c.assessment_id = a.assessment_id
		  AND a.org_domain = $2 AND c.assessment_id = $3 AND c.finding_id = $4 AND c.comment_id = $5`,
		text, org, id, findingID, commentID.String())
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return requireRow(res, findingID)
}

func (s *Postgres) DeleteComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM finding_comments c
		USING assessments a
		WHERE c.assessment_id = a.assessment_id
		  AND a.org_domain = $1 AND c.assessment_id = $2 AND c.finding_id = $3 AND c.comment_id = $4`,
		org, id, findingID, commentID.String())
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return requireRow(res, findingID)
}

func (s *Postgres) CountPerBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (map[domain.BestPracticeKey]int, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT j.pillar_id, j.question_id, j.best_practice_id, COUNT(*)
		FROM finding_best_practices j
		JOIN assessments a ON a.assessment_id = j.assessment_id
		JOIN findings f ON f.assessment_id = j.assessment_id AND f.finding_id = j.finding_id
		WHERE a.org_domain = $1 AND j.assessment_id = $2 AND NOT f.hidden
		GROUP BY j.pillar_id, j.question_id, j.best_practice_id`,
		org, id)
	if err != nil {
		return nil, fmt.Errorf("count findings per best practice: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.BestPracticeKey]int)
	for rows.Next() {
		var key domain.BestPracticeKey
		var n int
		if err := rows.Scan(&key.Pillar, &key.Question, &key.BestPractice, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (s *Postgres) loadComments(ctx context.Context, id domain.AssessmentID, f *models.Finding) error {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT comment_id, author_id, body, created_at
		FROM finding_comments
		WHERE assessment_id = $1 AND finding_id = $2
		ORDER BY created_at, comment_id`, id, f.ID)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Comment
		var rawID string
		if err := rows.Scan(&rawID, &c.AuthorID, &c.Text, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		parsed, err := domain.ParseCommentID(rawID)
		if err != nil {
			return fmt.Errorf("comment id %q: %w", rawID, err)
		}
		c.ID = parsed
		f.Comments = append(f.Comments, c)
	}
	return rows.Err()
}

func (s *Postgres) requireAssessment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM assessments WHERE org_domain = $1 AND assessment_id = $2)`,
		org, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check assessment %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) requireFinding(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) error {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM findings f
			JOIN assessments a ON a.assessment_id = f.assessment_id
			WHERE a.org_domain = $1 AND f.assessment_id = $2 AND f.finding_id = $3
		)`, org, id, findingID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check finding %s: %w", findingID, err)
	}
	if !exists {
		return fmt.Errorf("finding %s: %w", findingID, sentinel.ErrNotFound)
	}
	return nil
}

func scanFinding(row interface{ Scan(...any) error }) (*models.Finding, error) {
	var (
		f           models.Finding
		eventCode   sql.NullString
		remediation []byte
		resources   []byte
	)
	err := row.Scan(&f.ID, &f.Severity, &f.StatusCode, &f.StatusDetail, &f.RiskDetails,
		&f.Hidden, &f.IsAIAssociated, &eventCode, &remediation, &resources)
	if err != nil {
		return nil, err
	}
	f.EventCode = eventCode.String
	if remediation != nil {
		var r models.Remediation
		if err := json.Unmarshal(remediation, &r); err != nil {
			return nil, fmt.Errorf("unmarshal remediation: %w", err)
		}
		f.Remediation = &r
	}
	if resources != nil {
		// NULL stays nil; '[]' becomes the empty-but-collected slice.
		rs := []models.Resource{}
		if err := json.Unmarshal(resources, &rs); err != nil {
			return nil, fmt.Errorf("unmarshal resources: %w", err)
		}
		f.Resources = rs
	}
	return &f, nil
}

func requireRow(res sql.Result, id domain.FindingID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finding %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableJSON(v any, absent bool) (any, error) {
	if absent {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
