// Package account is the session-backed identity provider: it turns the
// session cookie into a policy.Actor and serves login, registration and
// logout.
package account

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"inkwell/metrics"
	"inkwell/models"
	"inkwell/policy"
	"inkwell/store"
	"inkwell/web"
)

const sessionUserKey = "user_id"

type AccountModule struct {
	store *store.Store
	log   zerolog.Logger
}

func NewAccountModule(st *store.Store, log zerolog.Logger) *AccountModule {
	return &AccountModule{
		store: st,
		log:   log,
	}
}

func (a *AccountModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/login", a.loginPage)
	router.POST("/login", a.loginPost)
	router.GET("/register", a.registerPage)
	router.POST("/register", a.registerPost)
	router.GET("/logout", RequireLogin, a.logout)
}

// Identify loads the session user and stores the resulting actor under
// web.ActorKey. A session pointing at a user that no longer exists is
// cleared and the request continues anonymously.
func (a *AccountModule) Identify(c *gin.Context) {
	actor := policy.Anonymous()

	session := sessions.Default(c)
	if id, ok := session.Get(sessionUserKey).(uint); ok {
		user, err := a.store.GetUser(c.Request.Context(), id)
		switch {
		case err == nil:
			actor = policy.FromUser(user)
		case errors.Is(err, models.ErrNotFound):
			session.Delete(sessionUserKey)
			_ = session.Save()
		default:
			web.Fail(c, err)
			return
		}
	}

	c.Set(web.ActorKey, actor)
	c.Next()
}

// CurrentActor returns the actor set by Identify, or an anonymous one.
func CurrentActor(c *gin.Context) policy.Actor {
	if v, ok := c.Get(web.ActorKey); ok {
		if actor, ok := v.(policy.Actor); ok {
			return actor
		}
	}
	return policy.Anonymous()
}

// Authorize checks action for the current actor. On denial it counts the
// denial, records the error for web.ErrorHandler and returns false; the
// caller just returns.
func Authorize(c *gin.Context, action policy.Action, ownerID uint) bool {
	if err := policy.Check(CurrentActor(c), action, ownerID); err != nil {
		metrics.AuthzDenialsTotal.WithLabelValues(action.String()).Inc()
		web.Fail(c, err)
		return false
	}
	return true
}

// RequireLogin stops anonymous requests with models.ErrUnauthenticated.
func RequireLogin(c *gin.Context) {
	if !CurrentActor(c).Authenticated {
		web.Fail(c, models.ErrUnauthenticated)
		return
	}
	c.Next()
}

// alreadySignedIn sends authenticated actors away from the login and
// registration forms.
func alreadySignedIn(c *gin.Context, action policy.Action) bool {
	if errors.Is(policy.Check(CurrentActor(c), action, 0), policy.ErrAlreadyAuthenticated) {
		c.Redirect(http.StatusFound, "/")
		return true
	}
	return false
}

func (a *AccountModule) loginPage(c *gin.Context) {
	if alreadySignedIn(c, policy.Login) {
		return
	}
	web.Page(c, http.StatusOK, "login.html", gin.H{
		"title": "Log in",
		"next":  c.Query("next"),
	})
}

func (a *AccountModule) loginPost(c *gin.Context) {
	if alreadySignedIn(c, policy.Login) {
		return
	}

	username := c.PostForm("username")
	password := c.PostForm("password")
	next := c.Query("next")

	user, err := a.store.Authenticate(c.Request.Context(), username, password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		metrics.LoginFailuresTotal.Inc()
		web.Page(c, http.StatusUnauthorized, "login.html", gin.H{
			"title":    "Log in",
			"error":    "Invalid username or password",
			"username": username,
			"next":     next,
		})
		return
	}
	if err != nil {
		web.Fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		web.Fail(c, err)
		return
	}

	a.log.Info().Uint("user_id", user.ID).Msg("user logged in")
	c.Redirect(http.StatusFound, web.SafeNext(next))
}

func (a *AccountModule) registerPage(c *gin.Context) {
	if alreadySignedIn(c, policy.Register) {
		return
	}
	web.Page(c, http.StatusOK, "register.html", gin.H{"title": "Register"})
}

func (a *AccountModule) registerPost(c *gin.Context) {
	if alreadySignedIn(c, policy.Register) {
		return
	}

	username := c.PostForm("username")
	email := c.PostForm("email")

	// Sent back on error; the password never is.
	formData := gin.H{
		"title":    "Register",
		"username": username,
		"email":    email,
	}

	user, err := a.store.CreateUser(c.Request.Context(), store.NewUser{
		Username: username,
		Email:    email,
		Password: c.PostForm("password"),
	})
	if err != nil {
		msg, ok := models.UserMessage(err)
		if !ok {
			web.Fail(c, err)
			return
		}
		status := http.StatusBadRequest
		if errors.Is(err, models.ErrConflict) {
			status = http.StatusConflict
		}
		formData["error"] = msg
		web.Page(c, status, "register.html", formData)
		return
	}

	role := "author"
	if user.IsAdmin {
		role = "admin"
	}
	metrics.RegistrationsTotal.WithLabelValues(role).Inc()
	a.log.Info().Uint("user_id", user.ID).Str("role", role).Msg("user registered")

	web.Flash(c, "Registration successful! You can now log in.")
	c.Redirect(http.StatusFound, "/login")
}

func (a *AccountModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()

	c.Redirect(http.StatusFound, "/")
}
