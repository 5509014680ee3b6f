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

// User is the account row. The password hash never serializes.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	AvatarKey    string    `json:"avatarKey,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, username, email, passwordHash, role string) (*User, error)
	List(ctx context.Context, limit, offset int, filters Filters) ([]User, int, error)
	ListRows(ctx context.Context, limit, offset int, filters Filters) ([]User, error)
	UpdateProfile(ctx context.Context, id int64, username, email string) (*User, error)
	UpdateAvatar(ctx context.Context, id int64, avatarKey string) (string, error)
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
	UpdateRole(ctx context.Context, id int64, role string) error
	Delete(ctx context.Context, id int64) (string, error)
	HasRoot(ctx context.Context) (bool, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, role, COALESCE(avatar_key,''), created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.AvatarKey, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

func (r *PgUserRepository) Create(ctx context.Context, username, email, passwordHash, role string) (*User, error) {
	const q = `
INSERT INTO users (username, email, password_hash, role)
VALUES ($1,$2,$3,$4)
RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, strings.TrimSpace(username), strings.ToLower(strings.TrimSpace(email)), passwordHash, role))
}

// userFilterClause builds the WHERE clause for the supported list filter (role).
func userFilterClause(filters Filters) (string, []any) {
	if role := filters["role"]; role != "" {
		return ` WHERE role=$1`, []any{role}
	}
	return "", nil
}

func (r *PgUserRepository) List(ctx context.Context, limit, offset int, filters Filters) ([]User, int, error) {
	where, args := userFilterClause(filters)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	items, err := r.ListRows(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgUserRepository) ListRows(ctx context.Context, limit, offset int, filters Filters) ([]User, error) {
	if limit <= 0 || offset < 0 {
		return nil, errors.New("invalid pagination")
	}
	where, args := userFilterClause(filters)
	n := len(args)
	q := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *u)
	}
	return items, rows.Err()
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id int64, username, email string) (*User, error) {
	const q = `
UPDATE users SET username=$1, email=$2, updated_at=now()
WHERE id=$3
RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, q, strings.TrimSpace(username), strings.ToLower(strings.TrimSpace(email)), id))
}

// UpdateAvatar swaps the avatar object key and returns the previous key so
// the caller can remove the old blob.
func (r *PgUserRepository) UpdateAvatar(ctx context.Context, id int64, avatarKey string) (string, error) {
	const q = `
UPDATE users u SET avatar_key=$1, updated_at=now()
FROM (SELECT COALESCE(avatar_key,'') AS prev FROM users WHERE id=$2) old
WHERE u.id=$2
RETURNING old.prev`
	var prev string
	if err := r.db.QueryRow(ctx, q, avatarKey, id).Scan(&prev); err != nil {
		return "", err
	}
	return prev, nil
}

func (r *PgUserRepository) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash=$1, updated_at=now() WHERE email=$2`, passwordHash, strings.ToLower(email))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) UpdateRole(ctx context.Context, id int64, role string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET role=$1, updated_at=now() WHERE id=$2`, role, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes the account and returns its avatar key for blob cleanup.
func (r *PgUserRepository) Delete(ctx context.Context, id int64) (string, error) {
	var avatarKey string
	err := r.db.QueryRow(ctx, `DELETE FROM users WHERE id=$1 RETURNING COALESCE(avatar_key,'')`, id).Scan(&avatarKey)
	if err != nil {
		return "", err
	}
	return avatarKey, nil
}

func (r *PgUserRepository) HasRoot(ctx context.Context) (bool, error) {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1 FROM users WHERE role=$1 LIMIT 1`, RoleRoot).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
