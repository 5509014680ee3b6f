package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tech is a technology tag attachable to blogs and projects.
type Tech struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IconKey   string    `json:"iconKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BatchResult summarizes a batch create: per-item failures never abort the
// whole request.
type BatchResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

type TechRepository interface {
	List(ctx context.Context, limit, offset int, filters Filters) ([]Tech, int, error)
	ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Tech, error)
	Get(ctx context.Context, id int64) (*Tech, error)
	Create(ctx context.Context, name, iconKey string) (*Tech, error)
	CreateBatch(ctx context.Context, names []string) (BatchResult, error)
	Update(ctx context.Context, id int64, name, iconKey string) (*Tech, error)
	Delete(ctx context.Context, id int64) (string, error)
}

type PgTechRepository struct {
	db *pgxpool.Pool
}

func NewPgTechRepository(db *pgxpool.Pool) *PgTechRepository {
	return &PgTechRepository{db: db}
}

const techColumns = `id, name, COALESCE(icon_key,''), created_at, updated_at`

func scanTech(row pgx.Row) (*Tech, error) {
	var t Tech
	if err := row.Scan(&t.ID, &t.Name, &t.IconKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PgTechRepository) List(ctx context.Context, limit, offset int, filters Filters) ([]Tech, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM techs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.ListRows(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgTechRepository) ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Tech, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	rows, err := r.db.Query(ctx, `SELECT `+techColumns+` FROM techs ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Tech, 0, limit)
	for rows.Next() {
		t, err := scanTech(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	return items, rows.Err()
}

func (r *PgTechRepository) Get(ctx context.Context, id int64) (*Tech, error) {
	return scanTech(r.db.QueryRow(ctx, `SELECT `+techColumns+` FROM techs WHERE id=$1`, id))
}

func (r *PgTechRepository) Create(ctx context.Context, name, iconKey string) (*Tech, error) {
	const q = `INSERT INTO techs (name, icon_key) VALUES ($1, NULLIF($2,'')) RETURNING ` + techColumns
	return scanTech(r.db.QueryRow(ctx, q, strings.TrimSpace(name), iconKey))
}

// CreateBatch inserts each name, counting duplicates as skipped and other
// failures as per-item errors.
func (r *PgTechRepository) CreateBatch(ctx context.Context, names []string) (BatchResult, error) {
	var result BatchResult
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			result.Errors = append(result.Errors, "empty tech name")
			continue
		}
		tag, err := r.db.Exec(ctx, `INSERT INTO techs (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if tag.RowsAffected() == 0 {
			result.Skipped++
		} else {
			result.Created++
		}
	}
	return result, nil
}

func (r *PgTechRepository) Update(ctx context.Context, id int64, name, iconKey string) (*Tech, error) {
	const q = `
UPDATE techs SET name=$1, icon_key=NULLIF($2,''), updated_at=now()
WHERE id=$3
RETURNING ` + techColumns
	return scanTech(r.db.QueryRow(ctx, q, strings.TrimSpace(name), iconKey, id))
}

// Delete removes the tech and returns its icon key for blob cleanup.
func (r *PgTechRepository) Delete(ctx context.Context, id int64) (string, error) {
	var iconKey string
	if err := r.db.QueryRow(ctx, `DELETE FROM techs WHERE id=$1 RETURNING COALESCE(icon_key,'')`, id).Scan(&iconKey); err != nil {
		return "", err
	}
	return iconKey, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
