// Package policy decides whether an actor may perform an action.
package policy

import (
	"errors"

	"inkwell/models"
)

// Actor is the identity attached to a request. The zero value is an
// anonymous visitor.
type Actor struct {
	UserID        uint
	Username      string
	IsAdmin       bool
	Authenticated bool
}

func Anonymous() Actor {
	return Actor{}
}

// FromUser builds the identity for a signed-in user.
func FromUser(u *models.User) Actor {
	return Actor{
		UserID:        u.ID,
		Username:      u.Username,
		IsAdmin:       u.IsAdmin,
		Authenticated: true,
	}
}

type Action int

const (
	ViewPost Action = iota
	ViewCategory
	ViewListing
	CreatePost
	EditPost
	DeletePost
	CreateCategory
	DeleteCategory
	ViewAdmin
	Register
	Login
)

var actionNames = map[Action]string{
	ViewPost:       "view_post",
	ViewCategory:   "view_category",
	ViewListing:    "view_listing",
	CreatePost:     "create_post",
	EditPost:       "edit_post",
	DeletePost:     "delete_post",
	CreateCategory: "create_category",
	DeleteCategory: "delete_category",
	ViewAdmin:      "view_admin",
	Register:       "register",
	Login:          "login",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// ErrAlreadyAuthenticated is returned for Register and Login when the
// actor already has a session; callers redirect instead of failing.
var ErrAlreadyAuthenticated = errors.New("already authenticated")

// Check returns nil when actor may perform action. ownerID is the owning
// user of the target post and is ignored for other actions.
//
// Failures are models.ErrUnauthenticated when a session is required but
// absent, models.ErrForbidden when the actor is known but not allowed.
func Check(actor Actor, action Action, ownerID uint) error {
	switch action {
	case ViewPost, ViewCategory, ViewListing:
		return nil

	case Register, Login:
		if actor.Authenticated {
			return ErrAlreadyAuthenticated
		}
		return nil

	case CreatePost:
		if !actor.Authenticated {
			return models.ErrUnauthenticated
		}
		return nil

	case EditPost, DeletePost:
		if !actor.Authenticated {
			return models.ErrUnauthenticated
		}
		if actor.UserID == ownerID || actor.IsAdmin {
			return nil
		}
		return models.ErrForbidden

	case CreateCategory, DeleteCategory, ViewAdmin:
		if !actor.Authenticated {
			return models.ErrUnauthenticated
		}
		if actor.IsAdmin {
			return nil
		}
		return models.ErrForbidden
	}

	return models.ErrForbidden
}
