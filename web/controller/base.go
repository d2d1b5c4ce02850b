// Package controller provides the HTTP handlers of the arena API and binds
// them to the service layer.
package controller

import (
	"github.com/createarena/arena/web/identity"
	"github.com/createarena/arena/web/middleware"

	"github.com/gin-gonic/gin"
)

// Guards are the authorization middlewares shared by all controllers.
type Guards struct {
	Authenticated  gin.HandlerFunc
	Admin          gin.HandlerFunc
	CreatorOrAdmin gin.HandlerFunc
}

func NewGuards(v identity.Verifier, users middleware.UserLookup) Guards {
	return Guards{
		Authenticated:  middleware.RequireAuthenticated(v),
		Admin:          middleware.RequireAdmin(users),
		CreatorOrAdmin: middleware.RequireCreatorOrAdmin(users),
	}
}

// BaseController splits a router group by the guard in front of it.
type BaseController struct {
	guards Guards
}

func (a *BaseController) authed(g *gin.RouterGroup) *gin.RouterGroup {
	return g.Group("", a.guards.Authenticated)
}

func (a *BaseController) admin(g *gin.RouterGroup) *gin.RouterGroup {
	return g.Group("", a.guards.Authenticated, a.guards.Admin)
}

func (a *BaseController) creatorOrAdmin(g *gin.RouterGroup) *gin.RouterGroup {
	return g.Group("", a.guards.Authenticated, a.guards.CreatorOrAdmin)
}
