package controller

import (
	"github.com/createarena/arena/web/service"
	"github.com/createarena/arena/web/session"

	"github.com/gin-gonic/gin"
)

type statusForm struct {
	Status string `json:"status"`
}

type winnerForm struct {
	ContestId   string `json:"contestId"`
	PaymentId   string `json:"paymentId"`
	WinnerEmail string `json:"winnerEmail"`
}

// ContestController serves the contest lifecycle.
type ContestController struct {
	BaseController
	contests *service.ContestService
}

func NewContestController(g *gin.RouterGroup, guards Guards, contests *service.ContestService) *ContestController {
	a := &ContestController{BaseController: BaseController{guards: guards}, contests: contests}
	a.initRouter(g)
	return a
}

func (a *ContestController) initRouter(g *gin.RouterGroup) {
	g.GET("/contests/approved", a.listApproved)
	g.GET("/contests/:id", a.get)

	creator := a.creatorOrAdmin(g)
	creator.POST("/contests", a.create)
	creator.GET("/contests/mine", a.listMine)
	creator.PATCH("/contests/:id/edit", a.edit)
	creator.DELETE("/contests/:id", a.delete)
	creator.PATCH("/declare-winner", a.declareWinner)

	admin := a.admin(g)
	admin.GET("/contests", a.listAll)
	admin.PATCH("/contests/:id", a.transition)
}

func (a *ContestController) create(c *gin.Context) {
	form := service.ContestInput{}
	if !bind(c, &form) {
		return
	}
	contest, err := a.contests.Create(c.Request.Context(), session.GetSubject(c), form)
	if err != nil {
		fail(c, err)
		return
	}
	jsonCreated(c, "contest created", contest)
}

func (a *ContestController) get(c *gin.Context) {
	contest, err := a.contests.View(c.Request.Context(), c.Param("id"))
	jsonObj(c, contest, err)
}

func (a *ContestController) listApproved(c *gin.Context) {
	contests, err := a.contests.ListApproved(c.Request.Context())
	jsonObj(c, contests, err)
}

func (a *ContestController) listMine(c *gin.Context) {
	contests, err := a.contests.ListByCreator(c.Request.Context(), session.GetSubject(c))
	jsonObj(c, contests, err)
}

func (a *ContestController) listAll(c *gin.Context) {
	contests, err := a.contests.ListAll(c.Request.Context())
	jsonObj(c, contests, err)
}

func (a *ContestController) transition(c *gin.Context) {
	form := &statusForm{}
	if !bind(c, form) {
		return
	}
	contest, err := a.contests.Transition(c.Request.Context(), c.Param("id"), form.Status)
	jsonMsgObj(c, "contest "+form.Status, contest, err)
}

func (a *ContestController) edit(c *gin.Context) {
	patch := service.ContestPatch{}
	if !bind(c, &patch) {
		return
	}
	contest, err := a.contests.Edit(c.Request.Context(), c.Param("id"), session.GetSubject(c), patch)
	jsonMsgObj(c, "contest updated", contest, err)
}

func (a *ContestController) delete(c *gin.Context) {
	err := a.contests.Delete(c.Request.Context(), c.Param("id"), session.GetUser(c))
	jsonMsg(c, "contest deleted", err)
}

func (a *ContestController) declareWinner(c *gin.Context) {
	form := &winnerForm{}
	if !bind(c, form) {
		return
	}
	payment, err := a.contests.DeclareWinner(c.Request.Context(), form.ContestId, form.PaymentId, form.WinnerEmail)
	jsonMsgObj(c, "winner declared", payment, err)
}
