// Package server assembles the application: one store, one listing
// service, the session store and every HTTP module on a gin engine.
package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"inkwell/account"
	"inkwell/admin"
	"inkwell/api"
	"inkwell/blog"
	"inkwell/common"
	"inkwell/listing"
	"inkwell/logging"
	"inkwell/metrics"
	"inkwell/site"
	"inkwell/store"
	"inkwell/web"
)

const sessionMaxAge = 86400 * 7

// New builds the router. db must already be migrated.
func New(cfg *common.Config, db *gorm.DB, log zerolog.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.SetHTMLTemplate(web.Templates())

	router.Use(
		logging.RequestID(),
		logging.Middleware(log),
		metrics.Middleware(),
		web.Recovery(log),
	)

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(cfg.SessionName, sessionStore))
	router.Use(web.ErrorHandler(log))

	st := store.New(db, common.NewPasswordHasher(cfg.BcryptCost))
	ls := listing.NewService(st)

	accountModule := account.NewAccountModule(st, log)
	router.Use(accountModule.Identify)
	accountModule.RegisterRoutes(router)

	blogModule := blog.NewBlogModule(st, ls, cfg.PerPage, log)
	blogModule.RegisterRoutes(router)

	adminModule := admin.NewAdminModule(st, log)
	adminModule.RegisterRoutes(router)

	apiModule := api.NewAPIModule(ls, cfg.PerPage)
	apiModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(st, cfg.Domain)
	siteModule.RegisterRoutes(router)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.NoRoute(web.NotFound)

	return router
}
