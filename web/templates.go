// Package web holds the HTML templates and the shared response helpers
// used by every HTTP module.
package web

import (
	"embed"
	"html/template"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

//go:embed views/*.html
var views embed.FS

// ActorKey is the gin context key holding the request's policy.Actor.
const ActorKey = "actor"

const dateLayout = "2006-01-02 15:04"

func FuncMap() template.FuncMap {
	return template.FuncMap{
		"now":      time.Now,
		"markdown": renderMarkdown,
		"date":     FormatDate,
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
	}
}

// Templates parses every embedded page. Pages are addressed by file name.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(FuncMap()).ParseFS(views, "views/*.html"))
}

// FormatDate is the single timestamp format used by pages and the API.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Page renders a template with the current actor and pending flash
// messages added to data.
func Page(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if actor, ok := c.Get(ActorKey); ok {
		data["actor"] = actor
	}
	if _, ok := c.Get(sessions.DefaultKey); ok {
		session := sessions.Default(c)
		if flashes := session.Flashes(); len(flashes) > 0 {
			data["flashes"] = flashes
			_ = session.Save()
		}
	}
	c.HTML(status, name, data)
}

// Flash queues a message for the next rendered page.
func Flash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	_ = session.Save()
}
