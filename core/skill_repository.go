package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Skill is one proficiency entry (e.g., "Go", level 80, category "backend").
type Skill struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Level     int       `json:"level"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SkillInput carries create/update fields for a skill.
type SkillInput struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	Category string `json:"category"`
}

type SkillRepository interface {
	List(ctx context.Context, limit, offset int, filters Filters) ([]Skill, int, error)
	ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Skill, error)
	Get(ctx context.Context, id int64) (*Skill, error)
	Create(ctx context.Context, input SkillInput) (*Skill, error)
	CreateBatch(ctx context.Context, inputs []SkillInput) (BatchResult, error)
	Update(ctx context.Context, id int64, input SkillInput) (*Skill, error)
	Delete(ctx context.Context, id int64) error
}

type PgSkillRepository struct {
	db *pgxpool.Pool
}

func NewPgSkillRepository(db *pgxpool.Pool) *PgSkillRepository {
	return &PgSkillRepository{db: db}
}

const skillColumns = `id, name, level, category, created_at, updated_at`

func scanSkill(row pgx.Row) (*Skill, error) {
	var s Skill
	if err := row.Scan(&s.ID, &s.Name, &s.Level, &s.Category, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func skillFilterClause(filters Filters) (string, []any) {
	if category := filters["category"]; category != "" {
		return ` WHERE category=$1`, []any{category}
	}
	return "", nil
}

func (r *PgSkillRepository) List(ctx context.Context, limit, offset int, filters Filters) ([]Skill, int, error) {
	where, args := skillFilterClause(filters)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM skills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.ListRows(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgSkillRepository) ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Skill, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	where, args := skillFilterClause(filters)
	n := len(args)
	q := `SELECT ` + skillColumns + ` FROM skills` + where +
		` ORDER BY category, name LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Skill, 0, limit)
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *s)
	}
	return items, rows.Err()
}

func (r *PgSkillRepository) Get(ctx context.Context, id int64) (*Skill, error) {
	return scanSkill(r.db.QueryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE id=$1`, id))
}

func (r *PgSkillRepository) Create(ctx context.Context, input SkillInput) (*Skill, error) {
	const q = `INSERT INTO skills (name, level, category) VALUES ($1,$2,$3) RETURNING ` + skillColumns
	return scanSkill(r.db.QueryRow(ctx, q, strings.TrimSpace(input.Name), input.Level, strings.TrimSpace(input.Category)))
}

func (r *PgSkillRepository) CreateBatch(ctx context.Context, inputs []SkillInput) (BatchResult, error) {
	var result BatchResult
	for _, input := range inputs {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			result.Errors = append(result.Errors, "empty skill name")
			continue
		}
		tag, err := r.db.Exec(ctx,
			`INSERT INTO skills (name, level, category) VALUES ($1,$2,$3) ON CONFLICT (name) DO NOTHING`,
			name, input.Level, strings.TrimSpace(input.Category))
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

func (r *PgSkillRepository) Update(ctx context.Context, id int64, input SkillInput) (*Skill, error) {
	const q = `
UPDATE skills SET name=$1, level=$2, category=$3, updated_at=now()
WHERE id=$4
RETURNING ` + skillColumns
	return scanSkill(r.db.QueryRow(ctx, q, strings.TrimSpace(input.Name), input.Level, strings.TrimSpace(input.Category), id))
}

func (r *PgSkillRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM skills WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
