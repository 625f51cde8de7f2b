package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"inkwell/cache"
	"inkwell/common"
	"inkwell/database"
	"inkwell/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))
	return db
}

func testConfig() *common.Config {
	return &common.Config{
		Env:           "test",
		Domain:        "http://localhost:8080",
		SessionSecret: "test-secret",
		SessionName:   "inkwell-test",
		PerPage:       5,
		BcryptCost:    bcrypt.MinCost,
	}
}

func setupServer(t *testing.T) (*httptest.Server, *gin.Engine, *gorm.DB, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	var logs bytes.Buffer
	router := New(testConfig(), db, zerolog.New(&logs))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, router, db, &logs
}

// browser is an HTTP client with its own cookie jar that does not follow
// redirects, so each step can assert on the Location header.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: base,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	return resp, readBody(b.t, resp)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.PostForm(b.base+path, form)
	require.NoError(b.t, err)
	return resp, readBody(b.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func (b *browser) register(username string) {
	b.t.Helper()
	resp, _ := b.post("/register", url.Values{
		"username": {username},
		"email":    {username + "@example.com"},
		"password": {"password123"},
	})
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
}

func (b *browser) login(username string) {
	b.t.Helper()
	resp, _ := b.post("/login", url.Values{
		"username": {username},
		"password": {"password123"},
	})
	require.Equal(b.t, http.StatusFound, resp.StatusCode)
}

func firstCardTitle(html string) string {
	start := strings.Index(html, `class="post-card"`)
	if start < 0 {
		return ""
	}
	rest := html[start:]
	open := strings.Index(rest, `<h2><a href="`)
	if open < 0 {
		return ""
	}
	rest = rest[open:]
	rest = rest[strings.Index(rest, ">")+1:]
	rest = rest[strings.Index(rest, ">")+1:]
	return rest[:strings.Index(rest, "<")]
}

func TestScenario_PublishBrowseAndDelete(t *testing.T) {
	srv, _, db, _ := setupServer(t)
	alice := newBrowser(t, srv.URL)
	bob := newBrowser(t, srv.URL)

	alice.register("alice")
	alice.login("alice")

	var admin models.User
	require.NoError(t, db.Where("username = ?", "alice").First(&admin).Error)
	assert.True(t, admin.IsAdmin)

	resp, _ := alice.post("/category/create", url.Values{"name": {"Tech"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	var tech models.Category
	require.NoError(t, db.Where("name = ?", "Tech").First(&tech).Error)

	resp, _ = alice.post("/post/create", url.Values{
		"title":      {"Hello"},
		"content":    {"First words"},
		"categories": {fmt.Sprint(tech.ID)},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
	postPath := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(postPath, "/post/"), postPath)

	resp, body := alice.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello", firstCardTitle(body))

	resp, body = alice.get(fmt.Sprintf("/category/%d", tech.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ">Hello<")

	resp, body = alice.get("/search?q=hel")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, ">Hello<")

	bob.register("bob")
	bob.login("bob")
	var author models.User
	require.NoError(t, db.Where("username = ?", "bob").First(&author).Error)
	assert.False(t, author.IsAdmin)

	resp, _ = bob.post(postPath+"/delete", url.Values{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = alice.get(postPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = alice.post(postPath+"/delete", url.Values{})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = alice.get(postPath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_UnknownRoute(t *testing.T) {
	srv, _, _, _ := setupServer(t)

	resp, body := newBrowser(t, srv.URL).get("/no/such/page")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "does not exist")

	resp, body = newBrowser(t, srv.URL).get("/api/nothing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"The page you are looking for does not exist."}`, body)
}

func TestServer_PanicRecovered(t *testing.T) {
	srv, router, _, logs := setupServer(t)
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	resp, body := newBrowser(t, srv.URL).get("/boom")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Something went wrong")
	assert.Contains(t, logs.String(), "kaboom")
}

func TestServer_PanicBehindETagIsJSON500(t *testing.T) {
	srv, router, _, logs := setupServer(t)
	router.GET("/api/boom", cache.ETag(), func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("kaboom")
	})

	resp, body := newBrowser(t, srv.URL).get("/api/boom")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("ETag"))
	assert.JSONEq(t, `{"error":"Something went wrong on our side."}`, body)
	assert.Contains(t, logs.String(), "kaboom")
}

func TestServer_RequestIDAndMetrics(t *testing.T) {
	srv, _, _, _ := setupServer(t)
	b := newBrowser(t, srv.URL)

	resp, _ := b.get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, body := b.get("/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `inkwell_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestServer_SessionCookieFlags(t *testing.T) {
	srv, _, _, _ := setupServer(t)
	b := newBrowser(t, srv.URL)
	b.register("alice")

	resp, _ := b.post("/login", url.Values{"username": {"alice"}, "password": {"password123"}})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "inkwell-test" {
			found = true
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	assert.True(t, found)
}
