package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Project is a showcased work item with its tech tags.
type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RepoURL     string    `json:"repoUrl,omitempty"`
	LiveURL     string    `json:"liveUrl,omitempty"`
	ImageKey    string    `json:"imageKey,omitempty"`
	Techs       []Tech    `json:"techs"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectInput carries create/update fields for a project.
type ProjectInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	RepoURL     string  `json:"repoUrl"`
	LiveURL     string  `json:"liveUrl"`
	TechIDs     []int64 `json:"techIds"`
}

type ProjectRepository interface {
	List(ctx context.Context, limit, offset int, filters Filters) ([]Project, int, error)
	ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Project, error)
	Get(ctx context.Context, id int64) (*Project, error)
	Create(ctx context.Context, input ProjectInput) (*Project, error)
	Update(ctx context.Context, id int64, input ProjectInput) (*Project, error)
	UpdateImage(ctx context.Context, id int64, imageKey string) (string, error)
	Delete(ctx context.Context, id int64) (string, error)
}

type PgProjectRepository struct {
	db *pgxpool.Pool
}

func NewPgProjectRepository(db *pgxpool.Pool) *PgProjectRepository {
	return &PgProjectRepository{db: db}
}

const projectColumns = `id, title, description, COALESCE(repo_url,''), COALESCE(live_url,''), COALESCE(image_key,''), created_at, updated_at`

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.RepoURL, &p.LiveURL, &p.ImageKey, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgProjectRepository) List(ctx context.Context, limit, offset int, filters Filters) ([]Project, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.ListRows(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgProjectRepository) ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Project, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	rows, err := r.db.Query(ctx, `
SELECT `+projectColumns+`
FROM projects
ORDER BY updated_at DESC, id DESC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Project, 0, limit)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTechs(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PgProjectRepository) attachTechs(ctx context.Context, projects []Project) error {
	if len(projects) == 0 {
		return nil
	}
	ids := make([]int64, len(projects))
	for i := range projects {
		ids[i] = projects[i].ID
		projects[i].Techs = []Tech{}
	}
	const q = `
SELECT pt.project_id, t.id, t.name, COALESCE(t.icon_key,''), t.created_at, t.updated_at
FROM project_techs pt
JOIN techs t ON t.id = pt.tech_id
WHERE pt.project_id = ANY($1)
ORDER BY t.name`
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[int64]int, len(projects))
	for i := range projects {
		byID[projects[i].ID] = i
	}
	for rows.Next() {
		var projectID int64
		var t Tech
		if err := rows.Scan(&projectID, &t.ID, &t.Name, &t.IconKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		if i, ok := byID[projectID]; ok {
			projects[i].Techs = append(projects[i].Techs, t)
		}
	}
	return rows.Err()
}

func (r *PgProjectRepository) Get(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	single := []Project{*p}
	if err := r.attachTechs(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// Create inserts the project and its tech associations in one transaction.
func (r *PgProjectRepository) Create(ctx context.Context, input ProjectInput) (*Project, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO projects (title, description, repo_url, live_url)
VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''))
RETURNING id`
	var id int64
	if err := tx.QueryRow(ctx, q,
		strings.TrimSpace(input.Title), strings.TrimSpace(input.Description), input.RepoURL, input.LiveURL,
	).Scan(&id); err != nil {
		return nil, err
	}
	if err := replaceAssociations(ctx, tx, "project_techs", "project_id", "tech_id", id, input.TechIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PgProjectRepository) Update(ctx context.Context, id int64, input ProjectInput) (*Project, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE projects SET title=$1, description=$2, repo_url=NULLIF($3,''), live_url=NULLIF($4,''), updated_at=now()
WHERE id=$5`
	tag, err := tx.Exec(ctx, q, strings.TrimSpace(input.Title), strings.TrimSpace(input.Description), input.RepoURL, input.LiveURL, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	if err := replaceAssociations(ctx, tx, "project_techs", "project_id", "tech_id", id, input.TechIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *PgProjectRepository) UpdateImage(ctx context.Context, id int64, imageKey string) (string, error) {
	const q = `
UPDATE projects p SET image_key=$1, updated_at=now()
FROM (SELECT COALESCE(image_key,'') AS prev FROM projects WHERE id=$2) old
WHERE p.id=$2
RETURNING old.prev`
	var prev string
	if err := r.db.QueryRow(ctx, q, imageKey, id).Scan(&prev); err != nil {
		return "", err
	}
	return prev, nil
}

func (r *PgProjectRepository) Delete(ctx context.Context, id int64) (string, error) {
	var imageKey string
	if err := r.db.QueryRow(ctx, `DELETE FROM projects WHERE id=$1 RETURNING COALESCE(image_key,'')`, id).Scan(&imageKey); err != nil {
		return "", err
	}
	return imageKey, nil
}
