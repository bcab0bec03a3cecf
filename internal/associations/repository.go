package associations

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var associationColumns = []string{
	"id", "user_id", "profile_code", "structure_id", "type_code",
	"start_date", "end_date", "status", "created_at", "updated_at",
}

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// Get fetches an association by id.
func (r *Repository) Get(ctx context.Context, id string) (Association, error) {
	return getAssociation(ctx, r.pool, sq.Eq{"id": id})
}

// ListByUser returns all rows for the user.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Association, error) {
	return listAssociations(ctx, r.pool, psql.Select(associationColumns...).
		From("user_profile_associations").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("start_date", "id"))
}

// ListExpiring returns non-inactive rows whose end date is at or before now.
func (r *Repository) ListExpiring(ctx context.Context, now time.Time) ([]Association, error) {
	return listAssociations(ctx, r.pool, psql.Select(associationColumns...).
		From("user_profile_associations").
		Where(sq.NotEq{"status": string(StatusInactive)}).
		Where(sq.LtOrEq{"end_date": now}).
		OrderBy("user_id", "start_date", "id"))
}

// WithinUser runs fn in a transaction holding the user's advisory lock. READ
// COMMITTED makes statements after the lock see rows committed while waiting.
func (r *Repository) WithinUser(ctx context.Context, userID int64, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
			return fmt.Errorf("associations: advisory lock: %w", err)
		}
		return fn(ctx, &pgTx{tx: tx, userID: userID})
	})
}

type pgTx struct {
	tx     pgx.Tx
	userID int64
}

func (t *pgTx) Get(ctx context.Context, id string) (Association, error) {
	return getAssociation(ctx, t.tx, sq.Eq{"id": id, "user_id": t.userID})
}

func (t *pgTx) Current(ctx context.Context) (Association, bool, error) {
	list, err := listAssociations(ctx, t.tx, psql.Select(associationColumns...).
		From("user_profile_associations").
		Where(sq.Eq{"user_id": t.userID, "status": string(StatusCurrent)}))
	if err != nil {
		return Association{}, false, err
	}
	if len(list) == 0 {
		return Association{}, false, nil
	}
	return list[0], true, nil
}

func (t *pgTx) Insert(ctx context.Context, a Association) error {
	query, args, err := psql.Insert("user_profile_associations").
		Columns(associationColumns...).
		Values(a.ID, a.UserID, a.ProfileCode, a.StructureID, a.TypeCode,
			a.StartDate, a.EndDate, string(a.Status), a.CreatedAt, a.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("associations: insert %s: %w", a.ID, shared.ErrDuplicateCode)
		}
		return err
	}
	return nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	query, args, err := psql.Update("user_profile_associations").
		Set("status", string(status)).
		Set("updated_at", at).
		Where(sq.Eq{"id": id, "user_id": t.userID}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("associations: second current row for user %d: %w", t.userID, shared.ErrDuplicateCode)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("associations: %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func getAssociation(ctx context.Context, q db.Querier, where sq.Eq) (Association, error) {
	query, args, err := psql.Select(associationColumns...).
		From("user_profile_associations").
		Where(where).
		ToSql()
	if err != nil {
		return Association{}, err
	}
	a, err := scanAssociation(q.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsNoRows(err) {
			return Association{}, fmt.Errorf("associations: %v: %w", where["id"], shared.ErrNotFound)
		}
		return Association{}, err
	}
	return a, nil
}

func listAssociations(ctx context.Context, q db.Querier, builder sq.SelectBuilder) ([]Association, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Association
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssociation(row pgx.Row) (Association, error) {
	var (
		a      Association
		status string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.ProfileCode, &a.StructureID, &a.TypeCode,
		&a.StartDate, &a.EndDate, &status, &a.CreatedAt, &a.UpdatedAt)
	a.Status = Status(status)
	return a, err
}
