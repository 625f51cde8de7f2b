// Package api serves the JSON listings. Both endpoints go through the same
// listing.ParseQuery and listing.Service as the HTML pages.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inkwell/account"
	"inkwell/cache"
	"inkwell/listing"
	"inkwell/models"
	"inkwell/web"
)

type APIModule struct {
	listing *listing.Service
	perPage int
}

func NewAPIModule(ls *listing.Service, perPage int) *APIModule {
	return &APIModule{
		listing: ls,
		perPage: perPage,
	}
}

func (a *APIModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api")
	group.Use(cache.ETag())
	{
		group.GET("/posts", a.posts)
		group.GET("/search", a.search)
	}
}

type CategoryJSON struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// PostJSON is one listing entry. Summary and FeatureImage are null when
// the post has none.
type PostJSON struct {
	ID           uint           `json:"id"`
	Title        string         `json:"title"`
	Summary      *string        `json:"summary"`
	FeatureImage *string        `json:"feature_image"`
	CreatedAt    string         `json:"created_at"`
	Author       string         `json:"author"`
	Categories   []CategoryJSON `json:"categories"`
}

type ListingJSON struct {
	Posts      []PostJSON `json:"posts"`
	HasNext    bool       `json:"has_next"`
	HasPrev    bool       `json:"has_prev"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
	TotalItems int64      `json:"total_items"`
	Query      string     `json:"query,omitempty"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toPostJSON(p models.Post) PostJSON {
	categories := make([]CategoryJSON, 0, len(p.Categories))
	for _, c := range p.Categories {
		categories = append(categories, CategoryJSON{ID: c.ID, Name: c.Name})
	}
	return PostJSON{
		ID:           p.ID,
		Title:        p.Title,
		Summary:      optional(p.Summary),
		FeatureImage: optional(p.FeatureImage),
		CreatedAt:    web.FormatDate(p.CreatedAt),
		Author:       p.Author.Username,
		Categories:   categories,
	}
}

func toListingJSON(page *listing.Page) ListingJSON {
	posts := make([]PostJSON, 0, len(page.Items))
	for _, p := range page.Items {
		posts = append(posts, toPostJSON(p))
	}
	return ListingJSON{
		Posts:      posts,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
		Page:       page.Page,
		TotalPages: page.TotalPages,
		TotalItems: page.TotalItems,
	}
}

// query parses the shared listing parameters. mine=1 scopes to the
// signed-in actor and needs a session.
func (a *APIModule) query(c *gin.Context) (listing.Query, error) {
	values := c.Request.URL.Query()
	q := listing.ParseQuery(values, a.perPage)

	if listing.WantsMine(values) {
		actor := account.CurrentActor(c)
		if !actor.Authenticated {
			return q, models.ErrUnauthenticated
		}
		q.OwnerID = actor.UserID
	}
	return q, nil
}

func (a *APIModule) posts(c *gin.Context) {
	q, err := a.query(c)
	if err != nil {
		web.Fail(c, err)
		return
	}

	page, err := a.listing.List(c.Request.Context(), q)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toListingJSON(page))
}

func (a *APIModule) search(c *gin.Context) {
	q, err := a.query(c)
	if err != nil {
		web.Fail(c, err)
		return
	}

	page, err := a.listing.List(c.Request.Context(), q)
	if err != nil {
		web.Fail(c, err)
		return
	}

	body := toListingJSON(page)
	body.Query = q.Text
	c.JSON(http.StatusOK, body)
}
