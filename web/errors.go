package web

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inkwell/models"
)

// Fail records err for ErrorHandler and stops the handler chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler turns the last error recorded with Fail into a response:
// an error page for browsers, a JSON envelope under /api.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		respond(c, log, c.Errors.Last().Err)
	}
}

// Recovery converts panics into the generic 500 response.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		respond(c, log, fmt.Errorf("panic: %v", recovered))
		c.Abort()
	})
}

// NotFound is the NoRoute handler.
func NotFound(c *gin.Context) {
	Fail(c, models.ErrNotFound)
}

func isAPI(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

func respond(c *gin.Context, log zerolog.Logger, err error) {
	if errors.Is(err, models.ErrUnauthenticated) {
		if isAPI(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Redirect(http.StatusFound, LoginURL(c))
		return
	}

	status, message := resolve(err)
	if status == http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("unhandled error")
	}

	if isAPI(c) {
		c.JSON(status, gin.H{"error": message})
		return
	}
	Page(c, status, "error.html", gin.H{
		"title":   http.StatusText(status),
		"status":  status,
		"message": message,
	})
}

func resolve(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "The page you are looking for does not exist."
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "You do not have permission to do that."
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConflict):
		msg, _ := models.UserMessage(err)
		if errors.Is(err, models.ErrConflict) {
			return http.StatusConflict, msg
		}
		return http.StatusBadRequest, msg
	}
	return http.StatusInternalServerError, "Something went wrong on our side."
}

// LoginURL points at the login page, returning to the current page
// afterwards when it is a plain GET.
func LoginURL(c *gin.Context) string {
	if c.Request.Method != http.MethodGet {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(c.Request.URL.RequestURI())
}

// SafeNext accepts only local absolute paths as redirect targets.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
