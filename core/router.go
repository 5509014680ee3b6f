package core

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// Cache entity namespaces. Every cached key of a type lives under its entity
// prefix so one invalidation scope covers it.
const (
	entityUser    = "user"
	entityBlog    = "blog"
	entityProject = "project"
	entitySkill   = "skill"
	entityTech    = "tech"
)

const (
	maxUploadBytes = 5 << 20 // 5 MiB per image
	resetTokenTTL  = 15 * time.Minute
)

// RouterDeps bundles the injected client handles and repositories. Everything
// is constructed once in main and shared across requests.
type RouterDeps struct {
	Cfg      Config
	Issuer   *TokenIssuer
	Cache    CacheStore
	TTLs     CacheTTLs
	Users    UserRepository
	Blogs    BlogRepository
	Projects ProjectRepository
	Skills   SkillRepository
	Techs    TechRepository
	OTP      *OTPStore
	Mailer   Mailer
	Store    ObjectStore
	Status   *StatusService
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(d RouterDeps) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	r.Use(OriginRefererMiddleware(d.Cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := Authenticate(d.Issuer, d.Users)
	adminOnly := RequireRole(RoleAdmin)

	userScope := InvalidationScope{Entity: entityUser}
	blogScope := InvalidationScope{Entity: entityBlog}
	projectScope := InvalidationScope{Entity: entityProject}
	skillScope := InvalidationScope{Entity: entitySkill}
	techScope := InvalidationScope{Entity: entityTech}

	api := r.Group("/api/v1")

	api.GET("/status", authed, adminOnly, func(c *gin.Context) {
		if d.Status == nil {
			respondError(c, http.StatusServiceUnavailable, "status collection unavailable")
			return
		}
		st := d.Status.Collect(c.Request.Context(), startedAt)
		respondOK(c, http.StatusOK, "status collected", gin.H{"status": st})
	})

	// ---- auth ----
	auth := api.Group("/auth")
	{
		auth.POST("/signup", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			var problems []string
			if len(strings.TrimSpace(req.Username)) < 3 {
				problems = append(problems, "username must be at least 3 characters")
			}
			if !isValidEmail(req.Email) {
				problems = append(problems, "email must be a valid address")
			}
			if len(req.Password) < 8 {
				problems = append(problems, "password must be at least 8 characters")
			}
			if len(problems) > 0 {
				respondAPIError(c, NewValidationError(problems...))
				return
			}

			hash, err := HashPassword(req.Password)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			ctx := c.Request.Context()
			user, err := d.Users.Create(ctx, req.Username, req.Email, hash, RoleUser)
			if err != nil {
				if isUniqueViolation(err) {
					respondAPIError(c, NewConflictError("username or email already in use"))
					return
				}
				respondAPIError(c, err)
				return
			}
			userScope.Invalidate(ctx, d.Cache)

			pair, err := d.Issuer.IssuePair(user.ID)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			setAuthCookies(c, d.Cfg, pair)
			respondOK(c, http.StatusCreated, "account created", gin.H{"user": user})
		})

		auth.POST("/signin", func(c *gin.Context) {
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			user, err := d.Users.FindByEmail(c.Request.Context(), req.Email)
			if err != nil {
				respondAPIError(c, NewUnauthorizedError("Invalid email or password"))
				return
			}
			if !CheckPassword(user.PasswordHash, req.Password) {
				respondAPIError(c, NewUnauthorizedError("Invalid email or password"))
				return
			}

			pair, err := d.Issuer.IssuePair(user.ID)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			setAuthCookies(c, d.Cfg, pair)
			respondOK(c, http.StatusOK, "signed in", gin.H{"user": user})
		})

		auth.POST("/refresh", func(c *gin.Context) {
			cookie, err := c.Cookie(RefreshTokenCookie)
			if err != nil || strings.TrimSpace(cookie) == "" {
				respondAPIError(c, NewUnauthorizedError("Refresh token missing"))
				return
			}
			userID, err := d.Issuer.VerifyRefresh(cookie)
			if err != nil {
				respondAPIError(c, NewUnauthorizedError("Invalid or expired refresh token"))
				return
			}
			user, err := d.Users.FindByID(c.Request.Context(), userID)
			if err != nil {
				respondAPIError(c, NewUnauthorizedError("User not found"))
				return
			}

			// Rotation: every successful refresh overwrites both cookies.
			pair, err := d.Issuer.IssuePair(user.ID)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			setAuthCookies(c, d.Cfg, pair)
			respondOK(c, http.StatusOK, "tokens refreshed", nil)
		})

		auth.POST("/logout", func(c *gin.Context) {
			clearAuthCookies(c, d.Cfg)
			respondOK(c, http.StatusOK, "signed out", nil)
		})

		auth.POST("/forgot-password", func(c *gin.Context) {
			var req struct {
				Email string `json:"email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || !isValidEmail(req.Email) {
				respondError(c, http.StatusBadRequest, "email must be a valid address")
				return
			}

			// Same response whether or not the account exists.
			ctx := c.Request.Context()
			if _, err := d.Users.FindByEmail(ctx, req.Email); err == nil {
				code, err := d.OTP.Issue(ctx, req.Email)
				if err != nil {
					respondAPIError(c, err)
					return
				}
				if err := d.Mailer.SendOTP(ctx, req.Email, code); err != nil {
					log.Printf("warn: failed to send otp mail to %s: %v", req.Email, err)
				}
			}
			respondOK(c, http.StatusOK, "if the account exists, a reset code has been sent", nil)
		})

		auth.POST("/verify-otp", func(c *gin.Context) {
			var req struct {
				Email string `json:"email"`
				OTP   string `json:"otp"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			ok, err := d.OTP.Verify(c.Request.Context(), req.Email, strings.TrimSpace(req.OTP))
			if err != nil {
				respondAPIError(c, err)
				return
			}
			if !ok {
				respondAPIError(c, NewUnauthorizedError("Invalid or expired OTP"))
				return
			}
			resetToken, err := d.Issuer.IssueResetToken(strings.ToLower(req.Email), resetTokenTTL)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "OTP verified", gin.H{"resetToken": resetToken})
		})

		auth.POST("/reset-password", func(c *gin.Context) {
			var req struct {
				ResetToken  string `json:"resetToken"`
				NewPassword string `json:"newPassword"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			if len(req.NewPassword) < 8 {
				respondAPIError(c, NewValidationError("password must be at least 8 characters"))
				return
			}
			email, err := d.Issuer.VerifyReset(req.ResetToken)
			if err != nil {
				respondAPIError(c, NewUnauthorizedError("Invalid or expired reset token"))
				return
			}
			hash, err := HashPassword(req.NewPassword)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			ctx := c.Request.Context()
			if err := d.Users.UpdatePasswordByEmail(ctx, email, hash); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewUnauthorizedError("User not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "password updated", nil)
		})
	}

	// ---- users ----
	users := api.Group("/users", authed)
	{
		users.GET("", func(c *gin.Context) {
			page, pageSize := parsePagination(c)
			filters := Filters{"role": c.Query("role")}
			result, err := CachedList(c.Request.Context(), d.Cache, d.TTLs, entityUser, page, pageSize, filters,
				func(ctx context.Context, limit, offset int) ([]User, error) {
					return d.Users.ListRows(ctx, limit, offset, filters)
				},
				func(ctx context.Context, limit, offset int) ([]User, int, error) {
					return d.Users.List(ctx, limit, offset, filters)
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "users fetched", gin.H{"items": result.Items, "pagination": result.Pagination})
		})

		users.GET("/me", func(c *gin.Context) {
			user, _ := CurrentUser(c)
			respondOK(c, http.StatusOK, "profile fetched", gin.H{"user": user})
		})

		users.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			user, err := CachedItem(c.Request.Context(), d.Cache, d.TTLs, entityUser, id,
				func(ctx context.Context) (*User, error) {
					u, err := d.Users.FindByID(ctx, id)
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, NewNotFoundError("user not found")
					}
					return u, err
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "user fetched", gin.H{"user": user})
		})

		users.PATCH("/me", func(c *gin.Context) {
			me, _ := CurrentUser(c)
			var req struct {
				Username string `json:"username"`
				Email    string `json:"email"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "invalid json")
				return
			}
			var problems []string
			if len(strings.TrimSpace(req.Username)) < 3 {
				problems = append(problems, "username must be at least 3 characters")
			}
			if !isValidEmail(req.Email) {
				problems = append(problems, "email must be a valid address")
			}
			if len(problems) > 0 {
				respondAPIError(c, NewValidationError(problems...))
				return
			}

			ctx := c.Request.Context()
			user, err := d.Users.UpdateProfile(ctx, me.ID, req.Username, req.Email)
			if err != nil {
				if isUniqueViolation(err) {
					respondAPIError(c, NewConflictError("username or email already in use"))
					return
				}
				respondAPIError(c, err)
				return
			}
			userScope.Invalidate(ctx, d.Cache, me.ID)
			// Cached blog payloads embed the author's name, so a rename
			// staleness-fans into the whole blog namespace.
			blogScope.InvalidateAll(ctx, d.Cache)
			respondOK(c, http.StatusOK, "profile updated", gin.H{"user": user})
		})

		users.POST("/me/avatar", func(c *gin.Context) {
			me, _ := CurrentUser(c)
			data, contentType, filename, ok := readImageUpload(c)
			if !ok {
				return
			}

			ctx := c.Request.Context()
			key := NewObjectKey("avatars", filename)
			if err := d.Store.Upload(ctx, key, data, contentType); err != nil {
				respondAPIError(c, err)
				return
			}
			prev, err := d.Users.UpdateAvatar(ctx, me.ID, key)
			if err != nil {
				removeObjectAsync(d.Store, key)
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, prev)
			userScope.Invalidate(ctx, d.Cache, me.ID)
			respondOK(c, http.StatusOK, "avatar updated", gin.H{"avatarUrl": d.Store.PublicURL(key)})
		})

		users.DELETE("/:id", func(c *gin.Context) {
			me, _ := CurrentUser(c)
			id, ok := parseID(c)
			if !ok {
				return
			}
			if id != me.ID && RoleRank(me.Role) < RoleRank(RoleAdmin) {
				respondAPIError(c, NewForbiddenError("Insufficient permissions"))
				return
			}

			ctx := c.Request.Context()
			target, err := d.Users.FindByID(ctx, id)
			if err != nil {
				respondAPIError(c, NewNotFoundError("user not found"))
				return
			}
			// ROOT can only be removed by itself.
			if target.Role == RoleRoot && me.ID != target.ID {
				respondAPIError(c, NewForbiddenError("Insufficient permissions"))
				return
			}

			// Deleting the account cascades the user's posts; grab their
			// image keys first so the blobs can be cleaned up afterwards.
			blogImageKeys, err := d.Blogs.ImageKeysByAuthor(ctx, id)
			if err != nil {
				log.Printf("warn: failed to collect blog images for user %d: %v", id, err)
			}

			avatarKey, err := d.Users.Delete(ctx, id)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, avatarKey)
			for _, key := range blogImageKeys {
				removeObjectAsync(d.Store, key)
			}
			userScope.Invalidate(ctx, d.Cache, id)
			blogScope.InvalidateAll(ctx, d.Cache)
			if id == me.ID {
				clearAuthCookies(c, d.Cfg)
			}
			respondOK(c, http.StatusOK, "account deleted", nil)
		})
	}

	// ---- roles ----
	api.POST("/roles/assign", authed, adminOnly, func(c *gin.Context) {
		me, _ := CurrentUser(c)
		var req struct {
			UserID int64  `json:"userId"`
			Role   string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid json")
			return
		}
		role := strings.ToUpper(strings.TrimSpace(req.Role))
		if !IsValidRole(role) {
			respondAPIError(c, NewValidationError("role must be one of USER, ADMIN"))
			return
		}
		// At most one ROOT account exists; it is never assigned.
		if role == RoleRoot {
			respondAPIError(c, NewForbiddenError("ROOT role cannot be assigned"))
			return
		}
		// Nobody changes their own role, whatever their rank.
		if req.UserID == me.ID {
			respondAPIError(c, NewForbiddenError("cannot change your own role"))
			return
		}

		ctx := c.Request.Context()
		target, err := d.Users.FindByID(ctx, req.UserID)
		if err != nil {
			respondAPIError(c, NewNotFoundError("user not found"))
			return
		}
		if target.Role == RoleRoot {
			respondAPIError(c, NewForbiddenError("ROOT role cannot be changed"))
			return
		}
		if err := d.Users.UpdateRole(ctx, req.UserID, role); err != nil {
			respondAPIError(c, err)
			return
		}
		userScope.Invalidate(ctx, d.Cache, req.UserID)
		respondOK(c, http.StatusOK, "role assigned", gin.H{"userId": req.UserID, "role": role})
	})

	// ---- blogs ----
	blogs := api.Group("/blogs")
	{
		blogs.GET("", func(c *gin.Context) {
			page, pageSize := parsePagination(c)
			filters := Filters{"authorId": c.Query("authorId")}
			result, err := CachedList(c.Request.Context(), d.Cache, d.TTLs, entityBlog, page, pageSize, filters,
				func(ctx context.Context, limit, offset int) ([]Blog, error) {
					return d.Blogs.ListRows(ctx, limit, offset, filters)
				},
				func(ctx context.Context, limit, offset int) ([]Blog, int, error) {
					return d.Blogs.List(ctx, limit, offset, filters)
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "blogs fetched", gin.H{"items": result.Items, "pagination": result.Pagination})
		})

		blogs.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			blog, err := CachedItem(c.Request.Context(), d.Cache, d.TTLs, entityBlog, id,
				func(ctx context.Context) (*Blog, error) {
					b, err := d.Blogs.Get(ctx, id)
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, NewNotFoundError("blog not found")
					}
					return b, err
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "blog fetched", gin.H{"blog": blog})
		})

		blogs.POST("", authed, func(c *gin.Context) {
			me, _ := CurrentUser(c)
			input, ok := bindBlogInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			blog, err := d.Blogs.Create(ctx, me.ID, input)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			blogScope.Invalidate(ctx, d.Cache)
			respondOK(c, http.StatusCreated, "blog created", gin.H{"blog": blog})
		})

		blogs.PUT("/:id", authed, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			if !canEditBlog(c, d, id) {
				return
			}
			input, ok := bindBlogInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			blog, err := d.Blogs.Update(ctx, id, input)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("blog not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			blogScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "blog updated", gin.H{"blog": blog})
		})

		blogs.POST("/:id/image", authed, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			if !canEditBlog(c, d, id) {
				return
			}
			data, contentType, filename, ok := readImageUpload(c)
			if !ok {
				return
			}

			ctx := c.Request.Context()
			key := NewObjectKey("blogs", filename)
			if err := d.Store.Upload(ctx, key, data, contentType); err != nil {
				respondAPIError(c, err)
				return
			}
			prev, err := d.Blogs.UpdateImage(ctx, id, key)
			if err != nil {
				removeObjectAsync(d.Store, key)
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, prev)
			blogScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "blog image updated", gin.H{"imageUrl": d.Store.PublicURL(key)})
		})

		blogs.DELETE("/:id", authed, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			if !canEditBlog(c, d, id) {
				return
			}
			ctx := c.Request.Context()
			imageKey, err := d.Blogs.Delete(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("blog not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, imageKey)
			blogScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "blog deleted", nil)
		})
	}

	// ---- projects ----
	projects := api.Group("/projects")
	{
		projects.GET("", func(c *gin.Context) {
			page, pageSize := parsePagination(c)
			result, err := CachedList(c.Request.Context(), d.Cache, d.TTLs, entityProject, page, pageSize, nil,
				func(ctx context.Context, limit, offset int) ([]Project, error) {
					return d.Projects.ListRows(ctx, limit, offset, nil)
				},
				func(ctx context.Context, limit, offset int) ([]Project, int, error) {
					return d.Projects.List(ctx, limit, offset, nil)
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "projects fetched", gin.H{"items": result.Items, "pagination": result.Pagination})
		})

		projects.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			project, err := CachedItem(c.Request.Context(), d.Cache, d.TTLs, entityProject, id,
				func(ctx context.Context) (*Project, error) {
					p, err := d.Projects.Get(ctx, id)
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, NewNotFoundError("project not found")
					}
					return p, err
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "project fetched", gin.H{"project": project})
		})

		projects.POST("", authed, adminOnly, func(c *gin.Context) {
			input, ok := bindProjectInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			project, err := d.Projects.Create(ctx, input)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			projectScope.Invalidate(ctx, d.Cache)
			respondOK(c, http.StatusCreated, "project created", gin.H{"project": project})
		})

		projects.PUT("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			input, ok := bindProjectInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			project, err := d.Projects.Update(ctx, id, input)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("project not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			projectScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "project updated", gin.H{"project": project})
		})

		projects.POST("/:id/image", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			data, contentType, filename, ok := readImageUpload(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			key := NewObjectKey("projects", filename)
			if err := d.Store.Upload(ctx, key, data, contentType); err != nil {
				respondAPIError(c, err)
				return
			}
			prev, err := d.Projects.UpdateImage(ctx, id, key)
			if err != nil {
				removeObjectAsync(d.Store, key)
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, prev)
			projectScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "project image updated", gin.H{"imageUrl": d.Store.PublicURL(key)})
		})

		projects.DELETE("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			imageKey, err := d.Projects.Delete(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("project not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, imageKey)
			projectScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "project deleted", nil)
		})
	}

	// ---- skills ----
	skills := api.Group("/skills")
	{
		skills.GET("", func(c *gin.Context) {
			page, pageSize := parsePagination(c)
			filters := Filters{"category": c.Query("category")}
			result, err := CachedList(c.Request.Context(), d.Cache, d.TTLs, entitySkill, page, pageSize, filters,
				func(ctx context.Context, limit, offset int) ([]Skill, error) {
					return d.Skills.ListRows(ctx, limit, offset, filters)
				},
				func(ctx context.Context, limit, offset int) ([]Skill, int, error) {
					return d.Skills.List(ctx, limit, offset, filters)
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "skills fetched", gin.H{"items": result.Items, "pagination": result.Pagination})
		})

		skills.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			skill, err := CachedItem(c.Request.Context(), d.Cache, d.TTLs, entitySkill, id,
				func(ctx context.Context) (*Skill, error) {
					s, err := d.Skills.Get(ctx, id)
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, NewNotFoundError("skill not found")
					}
					return s, err
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "skill fetched", gin.H{"skill": skill})
		})

		skills.POST("", authed, adminOnly, func(c *gin.Context) {
			input, ok := bindSkillInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			skill, err := d.Skills.Create(ctx, input)
			if err != nil {
				if isUniqueViolation(err) {
					respondAPIError(c, NewConflictError("skill already exists"))
					return
				}
				respondAPIError(c, err)
				return
			}
			skillScope.Invalidate(ctx, d.Cache)
			respondOK(c, http.StatusCreated, "skill created", gin.H{"skill": skill})
		})

		skills.POST("/batch", authed, adminOnly, func(c *gin.Context) {
			var req struct {
				Skills []SkillInput `json:"skills"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || len(req.Skills) == 0 {
				respondError(c, http.StatusBadRequest, "skills must be a non-empty array")
				return
			}
			ctx := c.Request.Context()
			result, err := d.Skills.CreateBatch(ctx, req.Skills)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			skillScope.Invalidate(ctx, d.Cache)
			respondBatch(c, result)
		})

		skills.PUT("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			input, ok := bindSkillInput(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			skill, err := d.Skills.Update(ctx, id, input)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("skill not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			skillScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "skill updated", gin.H{"skill": skill})
		})

		skills.DELETE("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			if err := d.Skills.Delete(ctx, id); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("skill not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			skillScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "skill deleted", nil)
		})
	}

	// ---- techs ----
	techs := api.Group("/techs")
	{
		techs.GET("", func(c *gin.Context) {
			page, pageSize := parsePagination(c)
			result, err := CachedList(c.Request.Context(), d.Cache, d.TTLs, entityTech, page, pageSize, nil,
				func(ctx context.Context, limit, offset int) ([]Tech, error) {
					return d.Techs.ListRows(ctx, limit, offset, nil)
				},
				func(ctx context.Context, limit, offset int) ([]Tech, int, error) {
					return d.Techs.List(ctx, limit, offset, nil)
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "techs fetched", gin.H{"items": result.Items, "pagination": result.Pagination})
		})

		techs.GET("/:id", func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			tech, err := CachedItem(c.Request.Context(), d.Cache, d.TTLs, entityTech, id,
				func(ctx context.Context) (*Tech, error) {
					t, err := d.Techs.Get(ctx, id)
					if errors.Is(err, pgx.ErrNoRows) {
						return nil, NewNotFoundError("tech not found")
					}
					return t, err
				},
			)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			respondOK(c, http.StatusOK, "tech fetched", gin.H{"tech": tech})
		})

		techs.POST("", authed, adminOnly, func(c *gin.Context) {
			var req struct {
				Name string `json:"name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
				respondError(c, http.StatusBadRequest, "name is required")
				return
			}
			ctx := c.Request.Context()
			tech, err := d.Techs.Create(ctx, req.Name, "")
			if err != nil {
				if isUniqueViolation(err) {
					respondAPIError(c, NewConflictError("tech already exists"))
					return
				}
				respondAPIError(c, err)
				return
			}
			techScope.Invalidate(ctx, d.Cache)
			respondOK(c, http.StatusCreated, "tech created", gin.H{"tech": tech})
		})

		techs.POST("/batch", authed, adminOnly, func(c *gin.Context) {
			var req struct {
				Names []string `json:"names"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || len(req.Names) == 0 {
				respondError(c, http.StatusBadRequest, "names must be a non-empty array")
				return
			}
			ctx := c.Request.Context()
			result, err := d.Techs.CreateBatch(ctx, req.Names)
			if err != nil {
				respondAPIError(c, err)
				return
			}
			techScope.Invalidate(ctx, d.Cache)
			respondBatch(c, result)
		})

		techs.POST("/:id/icon", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			data, contentType, filename, ok := readImageUpload(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			tech, err := d.Techs.Get(ctx, id)
			if err != nil {
				respondAPIError(c, NewNotFoundError("tech not found"))
				return
			}
			key := NewObjectKey("techs", filename)
			if err := d.Store.Upload(ctx, key, data, contentType); err != nil {
				respondAPIError(c, err)
				return
			}
			if _, err := d.Techs.Update(ctx, id, tech.Name, key); err != nil {
				removeObjectAsync(d.Store, key)
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, tech.IconKey)
			techScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "tech icon updated", gin.H{"iconUrl": d.Store.PublicURL(key)})
		})

		techs.PUT("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			var req struct {
				Name string `json:"name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
				respondError(c, http.StatusBadRequest, "name is required")
				return
			}
			ctx := c.Request.Context()
			current, err := d.Techs.Get(ctx, id)
			if err != nil {
				respondAPIError(c, NewNotFoundError("tech not found"))
				return
			}
			tech, err := d.Techs.Update(ctx, id, req.Name, current.IconKey)
			if err != nil {
				if isUniqueViolation(err) {
					respondAPIError(c, NewConflictError("tech already exists"))
					return
				}
				respondAPIError(c, err)
				return
			}
			techScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "tech updated", gin.H{"tech": tech})
		})

		techs.DELETE("/:id", authed, adminOnly, func(c *gin.Context) {
			id, ok := parseID(c)
			if !ok {
				return
			}
			ctx := c.Request.Context()
			iconKey, err := d.Techs.Delete(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					respondAPIError(c, NewNotFoundError("tech not found"))
					return
				}
				respondAPIError(c, err)
				return
			}
			removeObjectAsync(d.Store, iconKey)
			techScope.Invalidate(ctx, d.Cache, id)
			respondOK(c, http.StatusOK, "tech deleted", nil)
		})
	}

	return r
}

// canEditBlog allows the author or ADMIN+. Writes the error response itself.
func canEditBlog(c *gin.Context, d RouterDeps, blogID int64) bool {
	me, _ := CurrentUser(c)
	if RoleRank(me.Role) >= RoleRank(RoleAdmin) {
		return true
	}
	blog, err := d.Blogs.Get(c.Request.Context(), blogID)
	if err != nil {
		respondAPIError(c, NewNotFoundError("blog not found"))
		return false
	}
	if blog.AuthorID != me.ID {
		respondAPIError(c, NewForbiddenError("Insufficient permissions"))
		return false
	}
	return true
}

func bindBlogInput(c *gin.Context) (BlogInput, bool) {
	var input BlogInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid json")
		return input, false
	}
	var problems []string
	if strings.TrimSpace(input.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		problems = append(problems, "description is required")
	}
	if len(problems) > 0 {
		respondAPIError(c, NewValidationError(problems...))
		return input, false
	}
	return input, true
}

func bindProjectInput(c *gin.Context) (ProjectInput, bool) {
	var input ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid json")
		return input, false
	}
	var problems []string
	if strings.TrimSpace(input.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		problems = append(problems, "description is required")
	}
	if len(problems) > 0 {
		respondAPIError(c, NewValidationError(problems...))
		return input, false
	}
	return input, true
}

func bindSkillInput(c *gin.Context) (SkillInput, bool) {
	var input SkillInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, http.StatusBadRequest, "invalid json")
		return input, false
	}
	var problems []string
	if strings.TrimSpace(input.Name) == "" {
		problems = append(problems, "name is required")
	}
	if input.Level < 0 || input.Level > 100 {
		problems = append(problems, "level must be between 0 and 100")
	}
	if strings.TrimSpace(input.Category) == "" {
		problems = append(problems, "category is required")
	}
	if len(problems) > 0 {
		respondAPIError(c, NewValidationError(problems...))
		return input, false
	}
	return input, true
}

// respondBatch picks the status for a batch summary: 207 when any per-item
// error occurred, otherwise 201 (skipped duplicates alone are not errors).
func respondBatch(c *gin.Context, result BatchResult) {
	status := http.StatusCreated
	if len(result.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	respondOK(c, status, "batch processed", gin.H{
		"created": result.Created,
		"skipped": result.Skipped,
		"errors":  result.Errors,
	})
}

func parsePagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "10"))
	if err != nil || pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

var allowedImageTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/webp":    {},
	"image/gif":     {},
	"image/svg+xml": {},
}

// readImageUpload pulls the "image" part off a multipart form, enforcing the
// size cap and content-type whitelist. Writes the error response itself.
func readImageUpload(c *gin.Context) ([]byte, string, string, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "image file is required")
		return nil, "", "", false
	}
	if file.Size > maxUploadBytes {
		respondError(c, http.StatusBadRequest, "image exceeds the 5MB limit")
		return nil, "", "", false
	}
	contentType := file.Header.Get("Content-Type")
	if _, ok := allowedImageTypes[contentType]; !ok {
		respondError(c, http.StatusBadRequest, "unsupported image type")
		return nil, "", "", false
	}

	f, err := file.Open()
	if err != nil {
		respondAPIError(c, err)
		return nil, "", "", false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		respondAPIError(c, err)
		return nil, "", "", false
	}
	return data, contentType, file.Filename, true
}
