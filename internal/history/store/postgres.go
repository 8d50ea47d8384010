package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"assessor/internal/history/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
	txcontext "assessor/pkg/platform/tx"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the production version ledger store.
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

// Append serializes concurrent appends by locking the owning assessments
// row, so 1+max(version) is computed under the lock. The primary key on
// (assessment_id, version) is the backstop: a duplicate slipping past the
// lock surfaces as Conflict instead of corrupting the ledger.
func (s *Postgres) Append(ctx context.Context, org domain.OrgDomain, v *models.AssessmentVersion) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		ex := s.execer(ctx)

		var locked int
		err := ex.QueryRowContext(ctx, `
			SELECT 1 FROM assessments
			WHERE assessment_id = $1 AND org_domain = $2
			FOR UPDATE`,
			v.AssessmentID, org,
		).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("assessment %s: %w", v.AssessmentID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock assessment %s: %w", v.AssessmentID, err)
		}

		err = ex.QueryRowContext(ctx, `
			SELECT 1 + COALESCE(MAX(version), 0) FROM assessment_versions
			WHERE assessment_id = $1`,
			v.AssessmentID,
		).Scan(&v.Version)
		if err != nil {
			return fmt.Errorf("next version for %s: %w", v.AssessmentID, err)
		}

		_, err = ex.ExecContext(ctx, `
			INSERT INTO assessment_versions (
				assessment_id, version, created_at, created_by, execution_arn,
				finished_at, error, wafr_workload_arn, export_region
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.AssessmentID, v.Version, v.CreatedAt, v.CreatedBy, v.ExecutionArn,
			v.FinishedAt, nullString(v.Error), nullString(v.WafrWorkloadArn), nullString(v.ExportRegion),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("version %d for %s: %w", v.Version, v.AssessmentID, sentinel.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert version for %s: %w", v.AssessmentID, err)
		}
		return nil
	})
}

func (s *Postgres) List(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.AssessmentVersion, error) {
	query := `
		SELECT v.assessment_id, v.version, v.created_at, v.created_by, v.execution_arn,
		       v.finished_at, v.error, v.wafr_workload_arn, v.export_region
		FROM assessment_versions v
		JOIN assessments a ON a.assessment_id = v.assessment_id
		WHERE a.assessment_id = $1 AND a.org_domain = $2`
	args := []any{id, org}
	if p.AfterVersion > 0 {
		args = append(args, p.AfterVersion)
		query += fmt.Sprintf(" AND v.version < $%d", len(args))
	}
	args = append(args, p.Limit)
	query += fmt.Sprintf(" ORDER BY v.version DESC LIMIT $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.AssessmentVersion
	for rows.Next() {
		var v models.AssessmentVersion
		var errText, workloadArn, region sql.NullString
		if err := rows.Scan(&v.AssessmentID, &v.Version, &v.CreatedAt, &v.CreatedBy, &v.ExecutionArn,
			&v.FinishedAt, &errText, &workloadArn, &region); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.Error = errText.String
		v.WafrWorkloadArn = workloadArn.String
		v.ExportRegion = region.String
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	if len(out) == 0 {
		// Distinguish an exhausted or empty ledger from a missing assessment.
		// Continuation pages need this too: a cursor that outlives the
		// assessment must surface NotFound, not an empty page.
		var exists int
		err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT 1 FROM assessments WHERE assessment_id = $1 AND org_domain = $2`,
			id, org,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("check assessment %s: %w", id, err)
		}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
