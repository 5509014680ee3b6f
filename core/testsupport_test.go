package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubUserRepo is an in-memory UserRepository for handler tests.
type stubUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
}

func newStubUserRepo(seed ...*User) *stubUserRepo {
	r := &stubUserRepo{users: map[int64]*User{}, nextID: 1}
	for _, u := range seed {
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) FindByID(_ context.Context, id int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubUserRepo) Create(_ context.Context, username, email, passwordHash, role string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &User{
		ID:           r.nextID,
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.nextID++
	r.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (r *stubUserRepo) List(_ context.Context, limit, offset int, _ Filters) ([]User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *stubUserRepo) ListRows(ctx context.Context, limit, offset int, f Filters) ([]User, error) {
	items, _, err := r.List(ctx, limit, offset, f)
	return items, err
}

func (r *stubUserRepo) UpdateProfile(_ context.Context, id int64, username, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u.Username = username
	u.Email = strings.ToLower(email)
	copied := *u
	return &copied, nil
}

func (r *stubUserRepo) UpdateAvatar(_ context.Context, id int64, avatarKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	prev := u.AvatarKey
	u.AvatarKey = avatarKey
	return prev, nil
}

func (r *stubUserRepo) UpdatePasswordByEmail(_ context.Context, email, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			u.PasswordHash = passwordHash
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *stubUserRepo) UpdateRole(_ context.Context, id int64, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Role = role
	return nil
}

func (r *stubUserRepo) Delete(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	delete(r.users, id)
	return u.AvatarKey, nil
}

func (r *stubUserRepo) HasRoot(_ context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == RoleRoot {
			return true, nil
		}
	}
	return false, nil
}

// stubBlogRepo serves a fixed slice and counts store round-trips.
type stubBlogRepo struct {
	mu          sync.Mutex
	blogs       []Blog
	listCalls   int
	rowsCalls   int
	getCalls    int
	nextID      int64
	lastTechIDs []int64
}

func newStubBlogRepo(seed ...Blog) *stubBlogRepo {
	r := &stubBlogRepo{blogs: seed, nextID: 1}
	for _, b := range seed {
		if b.ID >= r.nextID {
			r.nextID = b.ID + 1
		}
	}
	return r
}

func (r *stubBlogRepo) List(_ context.Context, limit, offset int, _ Filters) ([]Blog, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	out := make([]Blog, len(r.blogs))
	copy(out, r.blogs)
	return out, len(r.blogs), nil
}

func (r *stubBlogRepo) ListRows(_ context.Context, limit, offset int, _ Filters) ([]Blog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rowsCalls++
	out := make([]Blog, len(r.blogs))
	copy(out, r.blogs)
	return out, nil
}

func (r *stubBlogRepo) Get(_ context.Context, id int64) (*Blog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	for _, b := range r.blogs {
		if b.ID == id {
			copied := b
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubBlogRepo) Create(_ context.Context, authorID int64, input BlogInput) (*Blog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := Blog{
		ID:          r.nextID,
		Title:       input.Title,
		Description: input.Description,
		Content:     input.Content,
		AuthorID:    authorID,
		Techs:       []Tech{},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.nextID++
	r.blogs = append(r.blogs, b)
	r.lastTechIDs = input.TechIDs
	return &b, nil
}

func (r *stubBlogRepo) Update(_ context.Context, id int64, input BlogInput) (*Blog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.blogs {
		if r.blogs[i].ID == id {
			r.blogs[i].Title = input.Title
			r.blogs[i].Description = input.Description
			r.blogs[i].Content = input.Content
			copied := r.blogs[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubBlogRepo) UpdateImage(_ context.Context, id int64, imageKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.blogs {
		if r.blogs[i].ID == id {
			prev := r.blogs[i].ImageKey
			r.blogs[i].ImageKey = imageKey
			return prev, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (r *stubBlogRepo) Delete(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.blogs {
		if r.blogs[i].ID == id {
			key := r.blogs[i].ImageKey
			r.blogs = append(r.blogs[:i], r.blogs[i+1:]...)
			return key, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (r *stubBlogRepo) ImageKeysByAuthor(_ context.Context, authorID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, b := range r.blogs {
		if b.AuthorID == authorID && b.ImageKey != "" {
			keys = append(keys, b.ImageKey)
		}
	}
	return keys, nil
}

// stubProjectRepo mirrors stubBlogRepo for the projects surface.
type stubProjectRepo struct {
	mu          sync.Mutex
	projects    []Project
	nextID      int64
	lastTechIDs []int64
}

func newStubProjectRepo() *stubProjectRepo {
	return &stubProjectRepo{nextID: 1}
}

func (r *stubProjectRepo) List(_ context.Context, limit, offset int, _ Filters) ([]Project, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out, len(r.projects), nil
}

func (r *stubProjectRepo) ListRows(ctx context.Context, limit, offset int, f Filters) ([]Project, error) {
	items, _, err := r.List(ctx, limit, offset, f)
	return items, err
}

func (r *stubProjectRepo) Get(_ context.Context, id int64) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.ID == id {
			copied := p
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubProjectRepo) Create(_ context.Context, input ProjectInput) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := Project{
		ID:          r.nextID,
		Title:       input.Title,
		Description: input.Description,
		RepoURL:     input.RepoURL,
		LiveURL:     input.LiveURL,
		Techs:       []Tech{},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.nextID++
	r.projects = append(r.projects, p)
	r.lastTechIDs = input.TechIDs
	return &p, nil
}

func (r *stubProjectRepo) Update(_ context.Context, id int64, input ProjectInput) (*Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.projects {
		if r.projects[i].ID == id {
			r.projects[i].Title = input.Title
			r.projects[i].Description = input.Description
			r.projects[i].RepoURL = input.RepoURL
			r.projects[i].LiveURL = input.LiveURL
			r.lastTechIDs = input.TechIDs
			copied := r.projects[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubProjectRepo) UpdateImage(_ context.Context, id int64, imageKey string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.projects {
		if r.projects[i].ID == id {
			prev := r.projects[i].ImageKey
			r.projects[i].ImageKey = imageKey
			return prev, nil
		}
	}
	return "", pgx.ErrNoRows
}

func (r *stubProjectRepo) Delete(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.projects {
		if r.projects[i].ID == id {
			key := r.projects[i].ImageKey
			r.projects = append(r.projects[:i], r.projects[i+1:]...)
			return key, nil
		}
	}
	return "", pgx.ErrNoRows
}

// stubTechRepo keeps techs by name with duplicate and forced-failure handling.
type stubTechRepo struct {
	mu     sync.Mutex
	techs  []Tech
	nextID int64
	failOn map[string]bool
}

func newStubTechRepo() *stubTechRepo {
	return &stubTechRepo{nextID: 1, failOn: map[string]bool{}}
}

func (r *stubTechRepo) List(_ context.Context, limit, offset int, _ Filters) ([]Tech, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tech, len(r.techs))
	copy(out, r.techs)
	return out, len(r.techs), nil
}

func (r *stubTechRepo) ListRows(ctx context.Context, limit, offset int, f Filters) ([]Tech, error) {
	items, _, err := r.List(ctx, limit, offset, f)
	return items, err
}

func (r *stubTechRepo) Get(_ context.Context, id int64) (*Tech, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.techs {
		if t.ID == id {
			copied := t
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubTechRepo) Create(_ context.Context, name, iconKey string) (*Tech, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := Tech{ID: r.nextID, Name: name, IconKey: iconKey}
	r.nextID++
	r.techs = append(r.techs, t)
	return &t, nil
}

func (r *stubTechRepo) CreateBatch(_ context.Context, names []string) (BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result BatchResult
	for _, name := range names {
		if r.failOn[name] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: boom", name))
			continue
		}
		exists := false
		for _, t := range r.techs {
			if t.Name == name {
				exists = true
				break
			}
		}
		if exists {
			result.Skipped++
			continue
		}
		r.techs = append(r.techs, Tech{ID: r.nextID, Name: name})
		r.nextID++
		result.Created++
	}
	return result, nil
}

func (r *stubTechRepo) Update(_ context.Context, id int64, name, iconKey string) (*Tech, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.techs {
		if r.techs[i].ID == id {
			r.techs[i].Name = name
			r.techs[i].IconKey = iconKey
			copied := r.techs[i]
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubTechRepo) Delete(_ context.Context, id int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.techs {
		if r.techs[i].ID == id {
			key := r.techs[i].IconKey
			r.techs = append(r.techs[:i], r.techs[i+1:]...)
			return key, nil
		}
	}
	return "", pgx.ErrNoRows
}

// stubSkillRepo implements just enough for batch-route tests.
type stubSkillRepo struct {
	mu     sync.Mutex
	skills map[string]Skill
	nextID int64
	failOn map[string]bool // names whose insert should error
}

func newStubSkillRepo() *stubSkillRepo {
	return &stubSkillRepo{skills: map[string]Skill{}, nextID: 1, failOn: map[string]bool{}}
}

func (r *stubSkillRepo) List(_ context.Context, limit, offset int, _ Filters) ([]Skill, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *stubSkillRepo) ListRows(ctx context.Context, limit, offset int, f Filters) ([]Skill, error) {
	items, _, err := r.List(ctx, limit, offset, f)
	return items, err
}

func (r *stubSkillRepo) Get(_ context.Context, id int64) (*Skill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.skills {
		if s.ID == id {
			copied := s
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *stubSkillRepo) Create(_ context.Context, input SkillInput) (*Skill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Skill{ID: r.nextID, Name: input.Name, Level: input.Level, Category: input.Category}
	r.nextID++
	r.skills[s.Name] = s
	return &s, nil
}

func (r *stubSkillRepo) CreateBatch(_ context.Context, inputs []SkillInput) (BatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result BatchResult
	for _, input := range inputs {
		if r.failOn[input.Name] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: boom", input.Name))
			continue
		}
		if _, exists := r.skills[input.Name]; exists {
			result.Skipped++
			continue
		}
		r.skills[input.Name] = Skill{ID: r.nextID, Name: input.Name, Level: input.Level, Category: input.Category}
		r.nextID++
		result.Created++
	}
	return result, nil
}

func (r *stubSkillRepo) Update(_ context.Context, id int64, input SkillInput) (*Skill, error) {
	return nil, pgx.ErrNoRows
}

func (r *stubSkillRepo) Delete(_ context.Context, id int64) error {
	return pgx.ErrNoRows
}

// stubObjectStore keeps uploads in memory.
type stubObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{objects: map[string][]byte{}}
}

func (s *stubObjectStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *stubObjectStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.removed = append(s.removed, key)
	return nil
}

func (s *stubObjectStore) PublicURL(key string) string {
	return "http://storage.test/" + key
}

func (s *stubObjectStore) removedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.removed))
	copy(out, s.removed)
	return out
}

// captureMailer records the last OTP instead of sending mail.
type captureMailer struct {
	mu   sync.Mutex
	to   string
	code string
}

func (m *captureMailer) SendOTP(_ context.Context, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = to
	m.code = code
	return nil
}

func (m *captureMailer) last() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to, m.code
}
