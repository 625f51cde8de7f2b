package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inkwell/account"
	"inkwell/metrics"
	"inkwell/models"
	"inkwell/policy"
	"inkwell/store"
	"inkwell/web"
)

type AdminModule struct {
	store *store.Store
	log   zerolog.Logger
}

func NewAdminModule(st *store.Store, log zerolog.Logger) *AdminModule {
	return &AdminModule{
		store: st,
		log:   log,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/admin", a.dashboard)
	router.POST("/category/create", a.createCategory)
	router.POST("/category/:id/delete", a.deleteCategory)
}

func (a *AdminModule) dashboard(c *gin.Context) {
	if !account.Authorize(c, policy.ViewAdmin, 0) {
		return
	}
	ctx := c.Request.Context()

	posts, err := a.store.AllPosts(ctx)
	if err != nil {
		web.Fail(c, err)
		return
	}
	categories, err := a.store.ListCategories(ctx)
	if err != nil {
		web.Fail(c, err)
		return
	}
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		web.Fail(c, err)
		return
	}

	web.Page(c, http.StatusOK, "admin.html", gin.H{
		"title":      "Admin",
		"posts":      posts,
		"categories": categories,
		"users":      users,
	})
}

// createCategory reports validation and duplicate-name errors as flashes
// on the dashboard, like the other dashboard actions.
func (a *AdminModule) createCategory(c *gin.Context) {
	if !account.Authorize(c, policy.CreateCategory, 0) {
		return
	}

	category, err := a.store.CreateCategory(c.Request.Context(), store.CategoryInput{
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
	})
	if err != nil {
		msg, ok := models.UserMessage(err)
		if !ok {
			web.Fail(c, err)
			return
		}
		web.Flash(c, msg)
		c.Redirect(http.StatusFound, "/admin")
		return
	}

	metrics.CategoriesWrittenTotal.WithLabelValues("create").Inc()
	a.log.Info().Uint("category_id", category.ID).Str("name", category.Name).Msg("category created")

	web.Flash(c, "Category created successfully!")
	c.Redirect(http.StatusFound, "/admin")
}

func (a *AdminModule) deleteCategory(c *gin.Context) {
	if !account.Authorize(c, policy.DeleteCategory, 0) {
		return
	}

	id, err := web.ParamID(c, "id")
	if err != nil {
		web.Fail(c, err)
		return
	}
	if err := a.store.DeleteCategory(c.Request.Context(), id); err != nil {
		web.Fail(c, err)
		return
	}

	metrics.CategoriesWrittenTotal.WithLabelValues("delete").Inc()
	a.log.Info().Uint("category_id", id).Msg("category deleted")

	web.Flash(c, "Category deleted successfully!")
	c.Redirect(http.StatusFound, "/admin")
}
