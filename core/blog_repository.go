package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Blog is a post with its eager-loaded tech tags.
type Blog struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	ImageKey    string    `json:"imageKey,omitempty"`
	AuthorID    int64     `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Techs       []Tech    `json:"techs"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BlogInput carries create/update fields for a blog post.
type BlogInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Content     string  `json:"content"`
	TechIDs     []int64 `json:"techIds"`
}

type BlogRepository interface {
	List(ctx context.Context, limit, offset int, filters Filters) ([]Blog, int, error)
	ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Blog, error)
	Get(ctx context.Context, id int64) (*Blog, error)
	Create(ctx context.Context, authorID int64, input BlogInput) (*Blog, error)
	Update(ctx context.Context, id int64, input BlogInput) (*Blog, error)
	UpdateImage(ctx context.Context, id int64, imageKey string) (string, error)
	Delete(ctx context.Context, id int64) (string, error)
	ImageKeysByAuthor(ctx context.Context, authorID int64) ([]string, error)
}

type PgBlogRepository struct {
	db *pgxpool.Pool
}

func NewPgBlogRepository(db *pgxpool.Pool) *PgBlogRepository {
	return &PgBlogRepository{db: db}
}

const blogColumns = `b.id, b.title, b.description, b.content, COALESCE(b.image_key,''), b.author_id, u.username, b.created_at, b.updated_at`

func scanBlog(row pgx.Row) (*Blog, error) {
	var b Blog
	if err := row.Scan(&b.ID, &b.Title, &b.Description, &b.Content, &b.ImageKey, &b.AuthorID, &b.AuthorName, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func blogFilterClause(filters Filters) (string, []any) {
	if author := filters["authorId"]; author != "" {
		if id, err := strconv.ParseInt(author, 10, 64); err == nil {
			return ` WHERE b.author_id=$1`, []any{id}
		}
	}
	return "", nil
}

func (r *PgBlogRepository) List(ctx context.Context, limit, offset int, filters Filters) ([]Blog, int, error) {
	where, args := blogFilterClause(filters)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM blogs b`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.ListRows(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgBlogRepository) ListRows(ctx context.Context, limit, offset int, filters Filters) ([]Blog, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	where, args := blogFilterClause(filters)
	n := len(args)
	q := `
SELECT ` + blogColumns + `
FROM blogs b
JOIN users u ON u.id = b.author_id` + where + `
ORDER BY b.updated_at DESC, b.id DESC
LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Blog, 0, limit)
	for rows.Next() {
		b, err := scanBlog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTechs(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// attachTechs loads the techs of all listed blogs in one query and groups
// them per post.
func (r *PgBlogRepository) attachTechs(ctx context.Context, blogs []Blog) error {
	if len(blogs) == 0 {
		return nil
	}
	ids := make([]int64, len(blogs))
	for i := range blogs {
		ids[i] = blogs[i].ID
		blogs[i].Techs = []Tech{}
	}
	const q = `
SELECT bt.blog_id, t.id, t.name, COALESCE(t.icon_key,''), t.created_at, t.updated_at
FROM blog_techs bt
JOIN techs t ON t.id = bt.tech_id
WHERE bt.blog_id = ANY($1)
ORDER BY t.name`
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	byID := make(map[int64]int, len(blogs))
	for i := range blogs {
		byID[blogs[i].ID] = i
	}
	for rows.Next() {
		var blogID int64
		var t Tech
		if err := rows.Scan(&blogID, &t.ID, &t.Name, &t.IconKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		if i, ok := byID[blogID]; ok {
			blogs[i].Techs = append(blogs[i].Techs, t)
		}
	}
	return rows.Err()
}

func (r *PgBlogRepository) Get(ctx context.Context, id int64) (*Blog, error) {
	const q = `
SELECT ` + blogColumns + `
FROM blogs b
JOIN users u ON u.id = b.author_id
WHERE b.id=$1`
	b, err := scanBlog(r.db.QueryRow(ctx, q, id))
	if err != nil {
		return nil, err
	}
	single := []Blog{*b}
	if err := r.attachTechs(ctx, single); err != nil {
		return nil, err
	}
	return &single[0], nil
}

// Create inserts the post and its tech associations in one transaction.
func (r *PgBlogRepository) Create(ctx context.Context, authorID int64, input BlogInput) (*Blog, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO blogs (title, description, content, author_id)
VALUES ($1,$2,$3,$4)
RETURNING id`
	var id int64
	if err := tx.QueryRow(ctx, q,
		strings.TrimSpace(input.Title), strings.TrimSpace(input.Description), input.Content, authorID,
	).Scan(&id); err != nil {
		return nil, err
	}
	if err := replaceAssociations(ctx, tx, "blog_techs", "blog_id", "tech_id", id, input.TechIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Update rewrites the post fields and replaces its tech associations in one
// transaction.
func (r *PgBlogRepository) Update(ctx context.Context, id int64, input BlogInput) (*Blog, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `
UPDATE blogs SET title=$1, description=$2, content=$3, updated_at=now()
WHERE id=$4`
	tag, err := tx.Exec(ctx, q, strings.TrimSpace(input.Title), strings.TrimSpace(input.Description), input.Content, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	if err := replaceAssociations(ctx, tx, "blog_techs", "blog_id", "tech_id", id, input.TechIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// UpdateImage swaps the cover image key and returns the previous key.
func (r *PgBlogRepository) UpdateImage(ctx context.Context, id int64, imageKey string) (string, error) {
	const q = `
UPDATE blogs b SET image_key=$1, updated_at=now()
FROM (SELECT COALESCE(image_key,'') AS prev FROM blogs WHERE id=$2) old
WHERE b.id=$2
RETURNING old.prev`
	var prev string
	if err := r.db.QueryRow(ctx, q, imageKey, id).Scan(&prev); err != nil {
		return "", err
	}
	return prev, nil
}

// Delete removes the post (associations cascade) and returns the image key.
func (r *PgBlogRepository) Delete(ctx context.Context, id int64) (string, error) {
	var imageKey string
	if err := r.db.QueryRow(ctx, `DELETE FROM blogs WHERE id=$1 RETURNING COALESCE(image_key,'')`, id).Scan(&imageKey); err != nil {
		return "", err
	}
	return imageKey, nil
}

// ImageKeysByAuthor returns the cover image keys of every post by the author.
// Collected before an account deletion cascades the rows, so the blobs can be
// cleaned up afterwards.
func (r *PgBlogRepository) ImageKeysByAuthor(ctx context.Context, authorID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT image_key FROM blogs WHERE author_id=$1 AND COALESCE(image_key,'') <> ''`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// replaceAssociations rewrites a many-to-many join table for one owner row
// inside the caller's transaction.
func replaceAssociations(ctx context.Context, tx pgx.Tx, table, ownerCol, refCol string, ownerID int64, refIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE `+ownerCol+`=$1`, ownerID); err != nil {
		return err
	}
	for _, refID := range refIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (`+ownerCol+`,`+refCol+`) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			ownerID, refID); err != nil {
			return err
		}
	}
	return nil
}
