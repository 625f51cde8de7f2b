package cache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the response until the handler chain returns, so
// the ETag header can be computed from the full body.
type bufferedWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
	wrote  bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
		w.wrote = true
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.wrote = true
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wrote = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.wrote
}

// ETag adds a weak ETag to successful GET responses and answers 304 Not
// Modified when the client already holds the same body. Handlers that
// write nothing (errors left to an outer middleware) pass through
// untouched.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{ResponseWriter: original, status: http.StatusOK}
		c.Writer = writer
		// Restore on panic too, so Recovery writes to the real response.
		defer func() { c.Writer = original }()

		c.Next()

		c.Writer = original
		if !writer.wrote {
			return
		}

		if writer.status == http.StatusOK {
			tag := Tag(writer.body.Bytes())
			original.Header().Set("ETag", tag)
			original.Header().Set("Cache-Control", "no-cache")

			if Matches(c.GetHeader("If-None-Match"), tag) {
				original.Header().Del("Content-Type")
				original.WriteHeader(http.StatusNotModified)
				original.WriteHeaderNow()
				return
			}
		}

		original.WriteHeader(writer.status)
		original.WriteHeaderNow()
		_, _ = original.Write(writer.body.Bytes())
	}
}
