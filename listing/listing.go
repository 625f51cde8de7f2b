// Package listing builds paginated, filtered post listings. The HTML and
// JSON surfaces both go through ParseQuery and Service.List.
package listing

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"inkwell/models"
	"inkwell/store"
)

const (
	DefaultPerPage = 5
	MaxPerPage     = 100
)

type Query struct {
	Page       int
	PerPage    int
	CategoryID uint
	Text       string
	// OwnerID restricts the listing to one author's posts when non-zero.
	OwnerID uint
}

type Page struct {
	Items      []models.Post
	Page       int
	PerPage    int
	TotalItems int64
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// ParseQuery reads page, per_page, category and q. Unparseable values
// fall back to defaults rather than failing. "mine" is left to callers,
// which know the actor.
func ParseQuery(values url.Values, perPage int) Query {
	if perPage < 1 {
		perPage = DefaultPerPage
	}

	q := Query{
		Page:    positiveInt(values.Get("page"), 1),
		PerPage: positiveInt(values.Get("per_page"), perPage),
		Text:    strings.TrimSpace(values.Get("q")),
	}
	if id, err := strconv.ParseUint(values.Get("category"), 10, 64); err == nil {
		q.CategoryID = uint(id)
	}
	return q.normalized()
}

// WantsMine reports whether the request asked for the actor's own posts.
func WantsMine(values url.Values) bool {
	v := strings.ToLower(values.Get("mine"))
	return v == "1" || v == "true" || v == "yes"
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func (q Query) normalized() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	q.Text = strings.TrimSpace(q.Text)
	return q
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// List returns one page of posts, newest first with id as tie-break.
// A category filter naming an unknown category is models.ErrNotFound;
// a page past the end is an empty page, not an error.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	q = q.normalized()

	if q.CategoryID != 0 {
		if _, err := s.store.GetCategory(ctx, q.CategoryID); err != nil {
			return nil, err
		}
	}

	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return nil, err
	}

	page := &Page{
		Items:      []models.Post{},
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalItems: total,
		TotalPages: int((total + int64(q.PerPage) - 1) / int64(q.PerPage)),
	}
	page.HasNext = page.Page < page.TotalPages
	page.HasPrev = page.Page > 1

	offset := (q.Page - 1) * q.PerPage
	if int64(offset) >= total {
		return page, nil
	}

	err := s.filtered(ctx, q).
		Select("posts.*").
		Order("posts.created_at DESC").
		Order("posts.id DESC").
		Limit(q.PerPage).
		Offset(offset).
		Find(&page.Items).Error
	if err != nil {
		return nil, err
	}

	if err := s.store.LoadRelations(ctx, page.Items); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *Service) filtered(ctx context.Context, q Query) *gorm.DB {
	tx := s.store.DB().WithContext(ctx).Model(&models.Post{})

	if q.CategoryID != 0 {
		tx = tx.Joins("INNER JOIN post_categories ON post_categories.post_id = posts.id AND post_categories.category_id = ?", q.CategoryID)
	}
	if q.OwnerID != 0 {
		tx = tx.Where("posts.user_id = ?", q.OwnerID)
	}
	if q.Text != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Text)) + "%"
		tx = tx.Where("(LOWER(posts.title) LIKE ? ESCAPE '\\' OR LOWER(posts.content) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	return tx
}

// escapeLike makes %, _ and \ match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
