package controller

import (
	"github.com/createarena/arena/web/service"
	"github.com/createarena/arena/web/session"

	"github.com/gin-gonic/gin"
)

type applyForm struct {
	Name string `json:"name"`
}

// CreatorController handles applications for the creator role.
type CreatorController struct {
	BaseController
	creators *service.CreatorService
}

func NewCreatorController(g *gin.RouterGroup, guards Guards, creators *service.CreatorService) *CreatorController {
	a := &CreatorController{BaseController: BaseController{guards: guards}, creators: creators}
	a.initRouter(g)
	return a
}

func (a *CreatorController) initRouter(g *gin.RouterGroup) {
	authed := a.authed(g)
	authed.POST("/creator", a.apply)
	authed.GET("/creator/mine", a.mine)

	admin := a.admin(g)
	admin.GET("/creator", a.list)
	admin.PATCH("/creator/:id", a.decide)
}

func (a *CreatorController) apply(c *gin.Context) {
	form := &applyForm{}
	if c.Request.ContentLength != 0 && !bind(c, form) {
		return
	}
	app, created, err := a.creators.Apply(c.Request.Context(), session.GetSubject(c), form.Name)
	if err != nil {
		fail(c, err)
		return
	}
	if !created {
		jsonMsgObj(c, "already applied", app, nil)
		return
	}
	jsonCreated(c, "application submitted", app)
}

func (a *CreatorController) mine(c *gin.Context) {
	app, err := a.creators.Latest(c.Request.Context(), session.GetSubject(c))
	jsonObj(c, app, err)
}

func (a *CreatorController) list(c *gin.Context) {
	apps, err := a.creators.List(c.Request.Context(), c.Query("status"))
	jsonObj(c, apps, err)
}

func (a *CreatorController) decide(c *gin.Context) {
	form := &statusForm{}
	if !bind(c, form) {
		return
	}
	app, err := a.creators.Decide(c.Request.Context(), c.Param("id"), form.Status)
	jsonMsgObj(c, "application "+form.Status, app, err)
}
