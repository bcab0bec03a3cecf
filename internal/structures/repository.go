package structures

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-access/internal/platform/db"
	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var structureColumns = []string{"id", "name", "acronym", "type_code", "parent_id", "tel", "address", "geo", "created_at", "updated_at"}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// Get fetches a structure by id.
func (r *Repository) Get(ctx context.Context, id int64) (Structure, error) {
	sqlStr, args, err := psql.Select(structureColumns...).From("structures").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Structure{}, err
	}
	s, err := scanStructure(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if db.IsNoRows(err) {
			return Structure{}, fmt.Errorf("structures: %d: %w", id, shared.ErrNotFound)
		}
		return Structure{}, err
	}
	return s, nil
}

// Insert stores a new structure and returns it with its assigned id.
func (r *Repository) Insert(ctx context.Context, s Structure) (Structure, error) {
	sqlStr, args, err := psql.Insert("structures").
		Columns("name", "acronym", "type_code", "parent_id", "tel", "address", "geo").
		Values(s.Name, s.Acronym, s.TypeCode, s.ParentID, s.Tel, s.Address, s.Geo).
		Suffix("RETURNING id, name, acronym, type_code, parent_id, tel, address, geo, created_at, updated_at").
		ToSql()
	if err != nil {
		return Structure{}, err
	}
	return scanStructure(r.pool.QueryRow(ctx, sqlStr, args...))
}

// Update overwrites the mutable columns of a structure.
func (r *Repository) Update(ctx context.Context, s Structure) (Structure, error) {
	sqlStr, args, err := psql.Update("structures").
		SetMap(map[string]any{
			"name":       s.Name,
			"acronym":    s.Acronym,
			"parent_id":  s.ParentID,
			"tel":        s.Tel,
			"address":    s.Address,
			"geo":        s.Geo,
			"updated_at": sq.Expr("NOW()"),
		}).
		Where(sq.Eq{"id": s.ID}).
		Suffix("RETURNING id, name, acronym, type_code, parent_id, tel, address, geo, created_at, updated_at").
		ToSql()
	if err != nil {
		return Structure{}, err
	}
	out, err := scanStructure(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if db.IsNoRows(err) {
			return Structure{}, fmt.Errorf("structures: %d: %w", s.ID, shared.ErrNotFound)
		}
		return Structure{}, err
	}
	return out, nil
}

// Children lists direct child ids of parentID.
func (r *Repository) Children(ctx context.Context, parentID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM structures WHERE parent_id = $1 ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListByTypes lists structures whose type is in types.
func (r *Repository) ListByTypes(ctx context.Context, types []string) ([]Structure, error) {
	if len(types) == 0 {
		return nil, nil
	}
	return r.query(ctx, psql.Select(structureColumns...).From("structures").Where(sq.Eq{"type_code": types}).OrderBy("id"))
}

// List returns all structures.
func (r *Repository) List(ctx context.Context) ([]Structure, error) {
	return r.query(ctx, psql.Select(structureColumns...).From("structures").OrderBy("id"))
}

func (r *Repository) query(ctx context.Context, q sq.SelectBuilder) ([]Structure, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Structure
	for rows.Next() {
		s, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanStructure(row pgx.Row) (Structure, error) {
	var s Structure
	err := row.Scan(&s.ID, &s.Name, &s.Acronym, &s.TypeCode, &s.ParentID, &s.Tel, &s.Address, &s.Geo, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
