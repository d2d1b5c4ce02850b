package controller

import (
	"github.com/createarena/arena/web/service"
	"github.com/createarena/arena/web/session"

	"github.com/gin-gonic/gin"
)

type registerForm struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

type roleForm struct {
	Role string `json:"role"`
}

// UserController exposes the role store.
type UserController struct {
	BaseController
	users *service.UserService
}

func NewUserController(g *gin.RouterGroup, guards Guards, users *service.UserService) *UserController {
	a := &UserController{BaseController: BaseController{guards: guards}, users: users}
	a.initRouter(g)
	return a
}

func (a *UserController) initRouter(g *gin.RouterGroup) {
	g.POST("/users", a.register)
	g.GET("/users/:email/role", a.role)

	admin := a.admin(g)
	admin.GET("/users", a.list)
	admin.PATCH("/users/:id/role", a.changeRole)
}

func (a *UserController) register(c *gin.Context) {
	form := &registerForm{}
	if !bind(c, form) {
		return
	}
	user, created, err := a.users.Register(c.Request.Context(), form.Email, form.Name, form.PhotoURL)
	if err != nil {
		fail(c, err)
		return
	}
	if !created {
		jsonMsgObj(c, "user already exists", user, nil)
		return
	}
	jsonCreated(c, "user created", user)
}

func (a *UserController) role(c *gin.Context) {
	role, err := a.users.RoleOf(c.Request.Context(), c.Param("email"))
	jsonObj(c, gin.H{"role": role}, err)
}

func (a *UserController) list(c *gin.Context) {
	users, err := a.users.List(c.Request.Context())
	jsonObj(c, users, err)
}

func (a *UserController) changeRole(c *gin.Context) {
	form := &roleForm{}
	if !bind(c, form) {
		return
	}
	user, err := a.users.ChangeRole(c.Request.Context(), session.GetSubject(c), c.Param("id"), form.Role)
	jsonMsgObj(c, "role updated", user, err)
}
