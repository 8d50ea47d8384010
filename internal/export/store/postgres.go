package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"assessor/internal/export/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
	txcontext "assessor/pkg/platform/tx"
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs the production export store.
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

func (s *Postgres) Create(ctx context.Context, org domain.OrgDomain, e *models.FileExport) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO file_exports (assessment_id, file_export_id, export_type, status, error, version_name, object_key, created_at)
		SELECT a.assessment_id, $3, $4, $5, NULL, $6, NULL, $7
		FROM assessments a
		WHERE a.assessment_id = $1 AND a.org_domain = $2`,
		e.AssessmentID, org, e.ID.String(), e.Type, e.Status, e.VersionName, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export for %s: %w", e.AssessmentID, err)
	}
	return requireRow(res, e.AssessmentID.String())
}

func (s *Postgres) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (*models.FileExport, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT e.assessment_id, e.file_export_id, e.export_type, e.status, e.error, e.version_name, e.object_key, e.created_at
		FROM file_exports e
		JOIN assessments a ON a.assessment_id = e.assessment_id
		WHERE a.assessment_id = $1 AND a.org_domain = $2 AND e.file_export_id = $3`,
		id, org, exportID.String(),
	)
	e, err := scanExport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("export %s: %w", exportID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get export %s: %w", exportID, err)
	}
	return e, nil
}

func (s *Postgres) List(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.FileExport, error) {
	query := `
		SELECT e.assessment_id, e.file_export_id, e.export_type, e.status, e.error, e.version_name, e.object_key, e.created_at
		FROM file_exports e
		JOIN assessments a ON a.assessment_id = e.assessment_id
		WHERE a.assessment_id = $1 AND a.org_domain = $2`
	args := []any{id, org}
	if p.AfterCreatedAt != "" {
		args = append(args, p.AfterCreatedAt, p.AfterID.String())
		query += fmt.Sprintf(" AND (e.created_at, e.file_export_id) < ($%d::timestamptz, $%d)", len(args)-1, len(args))
	}
	args = append(args, p.Limit)
	query += fmt.Sprintf(" ORDER BY e.created_at DESC, e.file_export_id DESC LIMIT $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports for %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.FileExport
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return out, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID, expected domain.ExportStatus, u models.StatusUpdate) error {
	// Compare-and-swap on the status the caller validated against, so a
	// concurrent update cannot commit on top of a stale snapshot and move the
	// machine out of a terminal status.
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE file_exports e
		SET status = $4, object_key = NULLIF($5, ''), error = NULLIF($6, '')
		FROM assessments a
		WHERE a.assessment_id = e.assessment_id
		  AND a.assessment_id = $1 AND a.org_domain = $2 AND e.file_export_id = $3
		  AND e.status = $7`,
		id, org, exportID.String(), u.Status, u.ObjectKey, u.Error, expected,
	)
	if err != nil {
		return fmt.Errorf("update export %s: %w", exportID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var one int
		err := s.execer(ctx).QueryRowContext(ctx, `
			SELECT 1 FROM file_exports e
			JOIN assessments a ON a.assessment_id = e.assessment_id
			WHERE a.assessment_id = $1 AND a.org_domain = $2 AND e.file_export_id = $3`,
			id, org, exportID.String()).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("export %s: %w", exportID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("recheck export %s: %w", exportID, err)
		}
		return fmt.Errorf("export %s left status %s concurrently: %w", exportID, expected, sentinel.ErrInvalidState)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExport(row rowScanner) (*models.FileExport, error) {
	var (
		e       models.FileExport
		rawID   string
		errText sql.NullString
		objKey  sql.NullString
	)
	if err := row.Scan(&e.AssessmentID, &rawID, &e.Type, &e.Status, &errText, &e.VersionName, &objKey, &e.CreatedAt); err != nil {
		return nil, err
	}
	id, err := domain.ParseFileExportID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored export id %q: %w", rawID, err)
	}
	e.ID = id
	e.Error = errText.String
	e.ObjectKey = objKey.String
	return &e, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}
