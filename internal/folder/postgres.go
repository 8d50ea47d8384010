package folder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
	txcontext "assessor/pkg/platform/tx"
)

// PostgresStore implements Store on PostgreSQL. Member unassignment on
// delete is the schema's ON DELETE SET NULL on the assessments folder
// reference, so it commits atomically with the folder row removal.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs the production folder store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, f *Folder) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO folders (org_domain, folder_id, name, created_at)
		VALUES ($1, $2, $3, $4)`,
		f.OrgDomain, f.ID, f.Name, f.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("folder %q: %w", f.Name, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert folder %s: %w", f.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, org domain.OrgDomain, id domain.FolderID) (*Folder, error) {
	var f Folder
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT org_domain, folder_id, name, created_at
		FROM folders WHERE org_domain = $1 AND folder_id = $2`,
		org, id,
	).Scan(&f.OrgDomain, &f.ID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get folder %s: %w", id, err)
	}
	return &f, nil
}

func (s *PostgresStore) List(ctx context.Context, org domain.OrgDomain, p ListParams) ([]Folder, error) {
	query := `
		SELECT org_domain, folder_id, name, created_at
		FROM folders WHERE org_domain = $1`
	args := []any{org}
	if p.AfterName != "" {
		args = append(args, p.AfterName)
		query += fmt.Sprintf(" AND name > $%d", len(args))
	}
	args = append(args, p.Limit)
	query += fmt.Sprintf(" ORDER BY name ASC LIMIT $%d", len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.OrgDomain, &f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Rename(ctx context.Context, org domain.OrgDomain, id domain.FolderID, name string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE folders SET name = $1 WHERE org_domain = $2 AND folder_id = $3`,
		name, org, id,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("folder %q: %w", name, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("rename folder %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *PostgresStore) Delete(ctx context.Context, org domain.OrgDomain, id domain.FolderID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM folders WHERE org_domain = $1 AND folder_id = $2`,
		org, id,
	)
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id domain.FolderID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
