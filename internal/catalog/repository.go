package catalog

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

const (
	roleColumns    = "r.code, r.name, r.description, r.created_at, r.updated_at, COALESCE(array_agg(rp.privilege_code ORDER BY rp.privilege_code) FILTER (WHERE rp.privilege_code IS NOT NULL), '{}')"
	profileColumns = "p.code, p.name, p.description, p.created_at, p.updated_at, COALESCE(array_agg(pr.role_code ORDER BY pr.role_code) FILTER (WHERE pr.role_code IS NOT NULL), '{}')"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// InsertPrivilege inserts a privilege row.
func (r *Repository) InsertPrivilege(ctx context.Context, p Privilege) (Privilege, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO privileges (code, name, description, type_code) VALUES ($1, $2, $3, $4)
RETURNING code, name, description, type_code, created_at, updated_at`, p.Code, p.Name, p.Description, p.TypeCode)
	out, err := scanPrivilege(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Privilege{}, fmt.Errorf("catalog: privilege %s: %w", p.Code, shared.ErrDuplicateCode)
		}
		return Privilege{}, err
	}
	return out, nil
}

// UpdatePrivilege updates name and description.
func (r *Repository) UpdatePrivilege(ctx context.Context, code, name, description string) (Privilege, error) {
	row := r.pool.QueryRow(ctx, `UPDATE privileges SET name = $2, description = $3, updated_at = NOW() WHERE code = $1
RETURNING code, name, description, type_code, created_at, updated_at`, code, name, description)
	out, err := scanPrivilege(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Privilege{}, fmt.Errorf("catalog: privilege %s: %w", code, shared.ErrNotFound)
		}
		return Privilege{}, err
	}
	return out, nil
}

// ListPrivileges returns privileges matching filter ordered by code.
func (r *Repository) ListPrivileges(ctx context.Context, filter PrivilegeFilter) ([]Privilege, error) {
	q := psql.Select("code", "name", "description", "type_code", "created_at", "updated_at").
		From("privileges").
		OrderBy("code")
	if filter.TypeCode != "" {
		q = q.Where(sq.Eq{"type_code": filter.TypeCode})
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where(sq.Or{sq.ILike{"code": like}, sq.ILike{"name": like}})
	}
	return r.queryPrivileges(ctx, q)
}

// PrivilegesByCodes returns the known privileges among codes.
func (r *Repository) PrivilegesByCodes(ctx context.Context, codes []string) ([]Privilege, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	q := psql.Select("code", "name", "description", "type_code", "created_at", "updated_at").
		From("privileges").
		Where(sq.Eq{"code": codes}).
		OrderBy("code")
	return r.queryPrivileges(ctx, q)
}

func (r *Repository) queryPrivileges(ctx context.Context, q sq.SelectBuilder) ([]Privilege, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Privilege
	for rows.Next() {
		p, err := scanPrivilege(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertRole inserts a role and its privilege edges.
func (r *Repository) InsertRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO roles (code, name, description) VALUES ($1, $2, $3)`, role.Code, role.Name, role.Description); err != nil {
			return err
		}
		return replaceChildren(ctx, tx, "role_privileges", "role_code", "privilege_code", role.Code, role.Privileges)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("catalog: role %s: %w", role.Code, shared.ErrDuplicateCode)
		}
		return Role{}, err
	}
	return r.GetRole(ctx, role.Code)
}

// UpdateRole updates a role and replaces its privilege edges.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE code = $1`, role.Code, role.Name, role.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("catalog: role %s: %w", role.Code, shared.ErrNotFound)
		}
		return replaceChildren(ctx, tx, "role_privileges", "role_code", "privilege_code", role.Code, role.Privileges)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetRole(ctx, role.Code)
}

// GetRole fetches a role by code.
func (r *Repository) GetRole(ctx context.Context, code string) (Role, error) {
	roles, err := r.queryRoles(ctx, roleSelect().Where(sq.Eq{"r.code": code}))
	if err != nil {
		return Role{}, err
	}
	if len(roles) == 0 {
		return Role{}, fmt.Errorf("catalog: role %s: %w", code, shared.ErrNotFound)
	}
	return roles[0], nil
}

// ListRoles returns all roles ordered by code.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	return r.queryRoles(ctx, roleSelect())
}

// RolesByCodes returns the known roles among codes.
func (r *Repository) RolesByCodes(ctx context.Context, codes []string) ([]Role, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return r.queryRoles(ctx, roleSelect().Where(sq.Eq{"r.code": codes}))
}

func roleSelect() sq.SelectBuilder {
	return psql.Select(roleColumns).
		From("roles r").
		LeftJoin("role_privileges rp ON rp.role_code = r.code").
		GroupBy("r.code").
		OrderBy("r.code")
}

func (r *Repository) queryRoles(ctx context.Context, q sq.SelectBuilder) ([]Role, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Code, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.Privileges); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// InsertProfile inserts a profile and its role edges.
func (r *Repository) InsertProfile(ctx context.Context, p Profile) (Profile, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO profiles (code, name, description) VALUES ($1, $2, $3)`, p.Code, p.Name, p.Description); err != nil {
			return err
		}
		return replaceChildren(ctx, tx, "profile_roles", "profile_code", "role_code", p.Code, p.Roles)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Profile{}, fmt.Errorf("catalog: profile %s: %w", p.Code, shared.ErrDuplicateCode)
		}
		return Profile{}, err
	}
	return r.GetProfile(ctx, p.Code)
}

// UpdateProfile updates a profile and replaces its role edges.
func (r *Repository) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET name = $2, description = $3, updated_at = NOW() WHERE code = $1`, p.Code, p.Name, p.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("catalog: profile %s: %w", p.Code, shared.ErrNotFound)
		}
		return replaceChildren(ctx, tx, "profile_roles", "profile_code", "role_code", p.Code, p.Roles)
	})
	if err != nil {
		return Profile{}, err
	}
	return r.GetProfile(ctx, p.Code)
}

// GetProfile fetches a profile by code.
func (r *Repository) GetProfile(ctx context.Context, code string) (Profile, error) {
	profiles, err := r.queryProfiles(ctx, profileSelect().Where(sq.Eq{"p.code": code}))
	if err != nil {
		return Profile{}, err
	}
	if len(profiles) == 0 {
		return Profile{}, fmt.Errorf("catalog: profile %s: %w", code, shared.ErrNotFound)
	}
	return profiles[0], nil
}

// ListProfiles returns all profiles ordered by code.
func (r *Repository) ListProfiles(ctx context.Context) ([]Profile, error) {
	return r.queryProfiles(ctx, profileSelect())
}

func profileSelect() sq.SelectBuilder {
	return psql.Select(profileColumns).
		From("profiles p").
		LeftJoin("profile_roles pr ON pr.profile_code = p.code").
		GroupBy("p.code").
		OrderBy("p.code")
}

func (r *Repository) queryProfiles(ctx context.Context, q sq.SelectBuilder) ([]Profile, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.Code, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt, &p.Roles); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// replaceChildren makes the edge set of parent equal to children, attaching
// missing edges and detaching stale ones.
func replaceChildren(ctx context.Context, tx pgx.Tx, table, parentCol, childCol, parent string, children []string) error {
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, childCol, table, parentCol), parent)
	if err != nil {
		return err
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	current := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		current[c] = struct{}{}
	}
	keep := make(map[string]struct{}, len(children))
	for _, c := range children {
		keep[c] = struct{}{}
		if _, ok := current[c]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, parentCol, childCol), parent, c); err != nil {
			return err
		}
	}
	for c := range current {
		if _, ok := keep[c]; ok {
			continue
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, table, parentCol, childCol), parent, c); err != nil {
			return err
		}
	}
	return nil
}

func scanPrivilege(row pgx.Row) (Privilege, error) {
	var p Privilege
	err := row.Scan(&p.Code, &p.Name, &p.Description, &p.TypeCode, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
