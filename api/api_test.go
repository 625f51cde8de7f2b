package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"inkwell/account"
	"inkwell/blog"
	"inkwell/common"
	"inkwell/database"
	"inkwell/listing"
	"inkwell/models"
	"inkwell/store"
	"inkwell/web"
)

// steppingClock advances one minute per call from a fixed start.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Minute)
		return current
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))
	return store.New(db, common.NewPasswordHasher(bcrypt.MinCost), store.WithClock(steppingClock()))
}

func setupRouter(st *store.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.SetHTMLTemplate(web.Templates())
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(web.ErrorHandler(zerolog.Nop()))

	accountModule := account.NewAccountModule(st, zerolog.Nop())
	router.Use(accountModule.Identify)
	accountModule.RegisterRoutes(router)

	ls := listing.NewService(st)
	blog.NewBlogModule(st, ls, listing.DefaultPerPage, zerolog.Nop()).RegisterRoutes(router)
	NewAPIModule(ls, listing.DefaultPerPage).RegisterRoutes(router)
	return router
}

func createTestUser(t *testing.T, st *store.Store, name string) *models.User {
	t.Helper()
	user, err := st.CreateUser(context.Background(), store.NewUser{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func createTestPost(t *testing.T, st *store.Store, ownerID uint, in store.PostInput) *models.Post {
	t.Helper()
	if in.Content == "" {
		in.Content = "Content of " + in.Title
	}
	post, err := st.CreatePost(context.Background(), ownerID, in)
	require.NoError(t, err)
	return post
}

func get(router *gin.Engine, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ListingJSON {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body ListingJSON
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func titles(body ListingJSON) []string {
	out := make([]string, 0, len(body.Posts))
	for _, p := range body.Posts {
		out = append(out, p.Title)
	}
	return out
}

func TestPosts_Shape(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	tech, err := st.CreateCategory(context.Background(), store.CategoryInput{Name: "Tech"})
	require.NoError(t, err)
	createTestPost(t, st, user.ID, store.PostInput{Title: "Bare"})
	post := createTestPost(t, st, user.ID, store.PostInput{
		Title:        "Full",
		Summary:      "Short",
		FeatureImage: "https://img.example/a.png",
		CategoryIDs:  []uint{tech.ID},
	})
	router := setupRouter(st)

	w := get(router, "/api/posts", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"posts", "has_next", "has_prev", "page", "total_pages", "total_items"} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "query")

	posts := raw["posts"].([]any)
	require.Len(t, posts, 2)

	full := posts[0].(map[string]any)
	assert.Equal(t, float64(post.ID), full["id"])
	assert.Equal(t, "Full", full["title"])
	assert.Equal(t, "Short", full["summary"])
	assert.Equal(t, "https://img.example/a.png", full["feature_image"])
	assert.Equal(t, web.FormatDate(post.CreatedAt), full["created_at"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`, full["created_at"])
	assert.Equal(t, "alice", full["author"])
	assert.Equal(t, []any{map[string]any{"id": float64(tech.ID), "name": "Tech"}}, full["categories"])

	bare := posts[1].(map[string]any)
	assert.Nil(t, bare["summary"])
	assert.Nil(t, bare["feature_image"])
	assert.Equal(t, []any{}, bare["categories"])
	assert.NotContains(t, bare, "content")
}

func TestPosts_Pagination(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	for i := 1; i <= 5; i++ {
		createTestPost(t, st, user.ID, store.PostInput{Title: fmt.Sprintf("Post %d", i)})
	}
	router := setupRouter(st)

	body := decode(t, get(router, "/api/posts?per_page=2", nil))
	assert.Equal(t, []string{"Post 5", "Post 4"}, titles(body))
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 3, body.TotalPages)
	assert.Equal(t, int64(5), body.TotalItems)
	assert.True(t, body.HasNext)
	assert.False(t, body.HasPrev)

	body = decode(t, get(router, "/api/posts?per_page=2&page=3", nil))
	assert.Equal(t, []string{"Post 1"}, titles(body))
	assert.False(t, body.HasNext)
	assert.True(t, body.HasPrev)

	body = decode(t, get(router, "/api/posts?per_page=2&page=7", nil))
	assert.Empty(t, body.Posts)
	assert.Equal(t, 7, body.Page)
	assert.Equal(t, 3, body.TotalPages)

	body = decode(t, get(router, "/api/posts?page=0&per_page=abc", nil))
	assert.Equal(t, 1, body.Page)
	assert.Len(t, body.Posts, 5)
}

func TestPosts_CategoryFilter(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	tech, err := st.CreateCategory(context.Background(), store.CategoryInput{Name: "Tech"})
	require.NoError(t, err)
	createTestPost(t, st, user.ID, store.PostInput{Title: "Tagged", CategoryIDs: []uint{tech.ID}})
	createTestPost(t, st, user.ID, store.PostInput{Title: "Untagged"})
	router := setupRouter(st)

	body := decode(t, get(router, fmt.Sprintf("/api/posts?category=%d", tech.ID), nil))
	assert.Equal(t, []string{"Tagged"}, titles(body))

	w := get(router, "/api/posts?category=999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"The page you are looking for does not exist."}`, w.Body.String())
}

func TestPosts_MineNeedsSession(t *testing.T) {
	st := setupTestStore(t)
	alice := createTestUser(t, st, "alice")
	bob := createTestUser(t, st, "bob")
	createTestPost(t, st, alice.ID, store.PostInput{Title: "Alice writes"})
	createTestPost(t, st, bob.ID, store.PostInput{Title: "Bob writes"})
	router := setupRouter(st)

	w := get(router, "/api/posts?mine=1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, w.Body.String())

	form := url.Values{"username": {"bob"}, "password": {"password123"}}
	req, _ := http.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	lw := httptest.NewRecorder()
	router.ServeHTTP(lw, req)
	require.Equal(t, http.StatusFound, lw.Code)

	body := decode(t, get(router, "/api/posts?mine=1", lw.Result().Cookies()))
	assert.Equal(t, []string{"Bob writes"}, titles(body))
}

func TestSearch(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	createTestPost(t, st, user.ID, store.PostInput{Title: "barfoobaz"})
	createTestPost(t, st, user.ID, store.PostInput{Title: "qux", Content: "nothing here"})
	createTestPost(t, st, user.ID, store.PostInput{Title: "other", Content: "body mentions Foo"})
	router := setupRouter(st)

	body := decode(t, get(router, "/api/search?q=FOO", nil))
	assert.Equal(t, []string{"other", "barfoobaz"}, titles(body))
	assert.Equal(t, "FOO", body.Query)
	assert.Equal(t, int64(2), body.TotalItems)

	body = decode(t, get(router, "/api/search?q=50%25", nil))
	assert.Empty(t, body.Posts)
}

func TestListings_HTMLAndJSONAgree(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	tech, err := st.CreateCategory(context.Background(), store.CategoryInput{Name: "Tech"})
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		in := store.PostInput{Title: fmt.Sprintf("Entry %02d", i)}
		if i%2 == 1 {
			in.CategoryIDs = []uint{tech.ID}
		}
		createTestPost(t, st, user.ID, in)
	}
	router := setupRouter(st)

	cases := []struct {
		html string
		json string
	}{
		{"/?page=1", "/api/posts?page=1"},
		{"/?page=2", "/api/posts?page=2"},
		{fmt.Sprintf("/category/%d", tech.ID), fmt.Sprintf("/api/posts?category=%d", tech.ID)},
		{"/search?q=entry+0", "/api/search?q=entry+0"},
	}
	for _, tc := range cases {
		body := decode(t, get(router, tc.json, nil))
		require.NotEmpty(t, body.Posts, tc.json)

		w := get(router, tc.html, nil)
		require.Equal(t, http.StatusOK, w.Code, tc.html)
		html := w.Body.String()

		last := -1
		for _, title := range titles(body) {
			idx := strings.Index(html, ">"+title+"<")
			require.Greater(t, idx, last, "%s: %s out of order", tc.html, title)
			last = idx
		}
		assert.Equal(t, len(body.Posts), strings.Count(html, `class="post-card"`), tc.html)
	}
}

func TestPosts_ETag(t *testing.T) {
	st := setupTestStore(t)
	user := createTestUser(t, st, "alice")
	createTestPost(t, st, user.ID, store.PostInput{Title: "Cached"})
	router := setupRouter(st)

	w := get(router, "/api/posts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	req, _ := http.NewRequest("GET", "/api/posts", nil)
	req.Header.Set("If-None-Match", tag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	createTestPost(t, st, user.ID, store.PostInput{Title: "Fresh"})

	req, _ = http.NewRequest("GET", "/api/posts", nil)
	req.Header.Set("If-None-Match", tag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, tag, w.Header().Get("ETag"))
}
