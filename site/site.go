package site

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inkwell/store"
	"inkwell/web"
)

type SiteModule struct {
	store  *store.Store
	domain string
}

func NewSiteModule(st *store.Store, domain string) *SiteModule {
	return &SiteModule{
		store:  st,
		domain: strings.TrimSuffix(domain, "/"),
	}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/sitemap.xml", s.sitemap)
	router.GET("/healthz", s.health)
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// sitemap lists the front page, every category and every post.
func (s *SiteModule) sitemap(c *gin.Context) {
	ctx := c.Request.Context()

	posts, err := s.store.AllPosts(ctx)
	if err != nil {
		web.Fail(c, err)
		return
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		web.Fail(c, err)
		return
	}

	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{
		Loc:        s.domain + "/",
		ChangeFreq: "daily",
		Priority:   "1.0",
	})
	for _, category := range categories {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        fmt.Sprintf("%s/category/%d", s.domain, category.ID),
			ChangeFreq: "weekly",
			Priority:   "0.5",
		})
	}
	for _, post := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        fmt.Sprintf("%s/post/%d", s.domain, post.ID),
			LastMod:    post.UpdatedAt.UTC().Format(time.RFC3339),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	c.XML(http.StatusOK, set)
}

func (s *SiteModule) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
