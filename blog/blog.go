package blog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inkwell/account"
	"inkwell/listing"
	"inkwell/metrics"
	"inkwell/models"
	"inkwell/policy"
	"inkwell/store"
	"inkwell/web"
)

type BlogModule struct {
	store   *store.Store
	listing *listing.Service
	perPage int
	log     zerolog.Logger
}

func NewBlogModule(st *store.Store, ls *listing.Service, perPage int, log zerolog.Logger) *BlogModule {
	return &BlogModule{
		store:   st,
		listing: ls,
		perPage: perPage,
		log:     log,
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", b.index)
	router.GET("/search", b.search)
	router.GET("/category/:id", b.category)

	router.GET("/post/create", b.newPost)
	router.POST("/post/create", b.createPost)
	router.GET("/post/:id", b.post)
	router.GET("/post/:id/edit", b.editPost)
	router.POST("/post/:id/edit", b.updatePost)
	router.POST("/post/:id/delete", b.deletePost)
}

// listPage runs a listing query and renders it with index.html.
func (b *BlogModule) listPage(c *gin.Context, q listing.Query, data gin.H) {
	page, err := b.listing.List(c.Request.Context(), q)
	if err != nil {
		web.Fail(c, err)
		return
	}

	categories, err := b.store.ListCategories(c.Request.Context())
	if err != nil {
		web.Fail(c, err)
		return
	}

	data["page"] = page
	data["categories"] = categories
	data["baseURL"] = web.PageBase(c.Request.URL.Path, c.Request.URL.Query())
	if _, ok := data["title"]; !ok {
		data["title"] = data["heading"]
	}
	web.Page(c, http.StatusOK, "index.html", data)
}

func (b *BlogModule) index(c *gin.Context) {
	values := c.Request.URL.Query()
	q := listing.ParseQuery(values, b.perPage)

	heading := "Latest posts"
	if listing.WantsMine(values) {
		actor := account.CurrentActor(c)
		if !actor.Authenticated {
			web.Fail(c, models.ErrUnauthenticated)
			return
		}
		q.OwnerID = actor.UserID
		heading = "My posts"
	}

	b.listPage(c, q, gin.H{"heading": heading, "title": ""})
}

func (b *BlogModule) category(c *gin.Context) {
	id, err := web.ParamID(c, "id")
	if err != nil {
		web.Fail(c, err)
		return
	}

	category, err := b.store.GetCategory(c.Request.Context(), id)
	if err != nil {
		web.Fail(c, err)
		return
	}

	q := listing.ParseQuery(c.Request.URL.Query(), b.perPage)
	q.CategoryID = category.ID

	b.listPage(c, q, gin.H{
		"heading":  "Category: " + category.Name,
		"title":    category.Name,
		"category": category,
	})
}

func (b *BlogModule) search(c *gin.Context) {
	q := listing.ParseQuery(c.Request.URL.Query(), b.perPage)
	if q.Text == "" {
		c.Redirect(http.StatusFound, "/")
		return
	}

	b.listPage(c, q, gin.H{
		"heading": fmt.Sprintf("Search results for %q", q.Text),
		"title":   "Search",
		"query":   q.Text,
	})
}

func (b *BlogModule) post(c *gin.Context) {
	post, ok := b.loadPost(c)
	if !ok {
		return
	}

	canEdit := policy.Check(account.CurrentActor(c), policy.EditPost, post.UserID) == nil
	web.Page(c, http.StatusOK, "post.html", gin.H{
		"title":   post.Title,
		"post":    post,
		"canEdit": canEdit,
	})
}

func (b *BlogModule) loadPost(c *gin.Context) (*models.Post, bool) {
	id, err := web.ParamID(c, "id")
	if err != nil {
		web.Fail(c, err)
		return nil, false
	}

	post, err := b.store.GetPost(c.Request.Context(), id)
	if err != nil {
		web.Fail(c, err)
		return nil, false
	}
	return post, true
}

func postInput(c *gin.Context) store.PostInput {
	return store.PostInput{
		Title:        c.PostForm("title"),
		Content:      c.PostForm("content"),
		Summary:      c.PostForm("summary"),
		FeatureImage: c.PostForm("feature_image"),
		CategoryIDs:  web.FormIDs(c, "categories"),
	}
}

// renderForm shows post_form.html. post carries the values to prefill,
// either the stored post or the rejected submission.
func (b *BlogModule) renderForm(c *gin.Context, status int, post models.Post, data gin.H) {
	categories, err := b.store.ListCategories(c.Request.Context())
	if err != nil {
		web.Fail(c, err)
		return
	}

	data["post"] = post
	data["categories"] = categories
	data["title"] = data["heading"]
	web.Page(c, status, "post_form.html", data)
}

// rejected rebuilds the submitted post for redisplay after a failed write.
func rejected(in store.PostInput) models.Post {
	post := models.Post{
		Title:        in.Title,
		Content:      in.Content,
		Summary:      in.Summary,
		FeatureImage: in.FeatureImage,
	}
	for _, id := range in.CategoryIDs {
		post.Categories = append(post.Categories, models.Category{ID: id})
	}
	return post
}

// formError re-renders the form for validation and conflict errors and
// hands everything else to web.Fail.
func (b *BlogModule) formError(c *gin.Context, err error, in store.PostInput, data gin.H) {
	msg, ok := models.UserMessage(err)
	if !ok {
		web.Fail(c, err)
		return
	}
	status := http.StatusBadRequest
	if errors.Is(err, models.ErrConflict) {
		status = http.StatusConflict
	}
	data["error"] = msg
	b.renderForm(c, status, rejected(in), data)
}

func (b *BlogModule) newPost(c *gin.Context) {
	if !account.Authorize(c, policy.CreatePost, 0) {
		return
	}
	b.renderForm(c, http.StatusOK, models.Post{}, gin.H{
		"heading":    "New post",
		"formAction": "/post/create",
	})
}

func (b *BlogModule) createPost(c *gin.Context) {
	if !account.Authorize(c, policy.CreatePost, 0) {
		return
	}
	actor := account.CurrentActor(c)

	in := postInput(c)
	post, err := b.store.CreatePost(c.Request.Context(), actor.UserID, in)
	if err != nil {
		b.formError(c, err, in, gin.H{
			"heading":    "New post",
			"formAction": "/post/create",
		})
		return
	}

	metrics.PostsWrittenTotal.WithLabelValues("create").Inc()
	b.log.Info().Uint("post_id", post.ID).Uint("user_id", actor.UserID).Msg("post created")

	web.Flash(c, "Post created successfully!")
	c.Redirect(http.StatusFound, fmt.Sprintf("/post/%d", post.ID))
}

func (b *BlogModule) editPost(c *gin.Context) {
	post, ok := b.loadPost(c)
	if !ok {
		return
	}
	if !account.Authorize(c, policy.EditPost, post.UserID) {
		return
	}

	b.renderForm(c, http.StatusOK, *post, gin.H{
		"heading":    "Edit post",
		"formAction": fmt.Sprintf("/post/%d/edit", post.ID),
	})
}

func (b *BlogModule) updatePost(c *gin.Context) {
	post, ok := b.loadPost(c)
	if !ok {
		return
	}
	if !account.Authorize(c, policy.EditPost, post.UserID) {
		return
	}

	in := postInput(c)
	if _, err := b.store.UpdatePost(c.Request.Context(), post.ID, in); err != nil {
		b.formError(c, err, in, gin.H{
			"heading":    "Edit post",
			"formAction": fmt.Sprintf("/post/%d/edit", post.ID),
		})
		return
	}

	metrics.PostsWrittenTotal.WithLabelValues("update").Inc()
	b.log.Info().Uint("post_id", post.ID).Uint("user_id", account.CurrentActor(c).UserID).Msg("post updated")

	web.Flash(c, "Post updated successfully!")
	c.Redirect(http.StatusFound, fmt.Sprintf("/post/%d", post.ID))
}

func (b *BlogModule) deletePost(c *gin.Context) {
	post, ok := b.loadPost(c)
	if !ok {
		return
	}
	if !account.Authorize(c, policy.DeletePost, post.UserID) {
		return
	}

	if err := b.store.DeletePost(c.Request.Context(), post.ID); err != nil {
		web.Fail(c, err)
		return
	}

	metrics.PostsWrittenTotal.WithLabelValues("delete").Inc()
	b.log.Info().Uint("post_id", post.ID).Uint("user_id", account.CurrentActor(c).UserID).Msg("post deleted")

	web.Flash(c, "Post deleted successfully!")
	c.Redirect(http.StatusFound, "/")
}
