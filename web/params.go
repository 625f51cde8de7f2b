package web

import (
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"inkwell/models"
)

// ParamID parses a positive numeric path parameter. Anything else is
// reported as models.ErrNotFound, matching an id that does not resolve.
func ParamID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, models.ErrNotFound
	}
	return uint(id), nil
}

// FormIDs parses a repeated form field of ids, skipping malformed values.
func FormIDs(c *gin.Context, name string) []uint {
	var ids []uint
	for _, raw := range c.PostFormArray(name) {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			ids = append(ids, uint(id))
		}
	}
	return ids
}

// PageBase returns path plus the current query without "page", ready for
// "page=N" to be appended.
func PageBase(path string, values url.Values) string {
	rest := url.Values{}
	for k, v := range values {
		if k != "page" {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return path + "?"
	}
	return path + "?" + rest.Encode() + "&"
}
