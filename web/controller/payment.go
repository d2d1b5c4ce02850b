package controller

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/entity"
	"github.com/createarena/arena/web/service"
	"github.com/createarena/arena/web/session"

	"github.com/gin-gonic/gin"
)

// checkoutForm takes price as a raw JSON value so that strings and fractions
// are reported as InvalidPrice rather than a malformed body.
type checkoutForm struct {
	Price       any    `json:"price"`
	ContestId   string `json:"contestId"`
	DisplayName string `json:"displayName"`
}

type submitForm struct {
	Link string `json:"link"`
}

// PaymentController serves checkout, confirmation, submissions and entries.
type PaymentController struct {
	BaseController
	payments *service.PaymentService
}

func NewPaymentController(g *gin.RouterGroup, guards Guards, payments *service.PaymentService) *PaymentController {
	a := &PaymentController{BaseController: BaseController{guards: guards}, payments: payments}
	a.initRouter(g)
	return a
}

func (a *PaymentController) initRouter(g *gin.RouterGroup) {
	g.POST("/webhooks/payment", a.webhook)

	authed := a.authed(g)
	authed.POST("/create-checkout-session", a.checkout)
	authed.GET("/payment-success", a.confirm)
	authed.PATCH("/payment-success", a.confirm)
	authed.GET("/contests/:id/participants", a.participants)
	authed.POST("/contests/:id/submit-task", a.submitTask)
	authed.GET("/payments/mine", a.mine)
	authed.GET("/payments/winnings", a.winnings)
}

func priceValue(v any) float64 {
	switch p := v.(type) {
	case float64:
		return p
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (a *PaymentController) checkout(c *gin.Context) {
	form := &checkoutForm{}
	if !bind(c, form) {
		return
	}
	subject := session.GetSubject(c)
	name := form.DisplayName
	if name == "" {
		name = subject
	}
	res, err := a.payments.CreateCheckoutSession(c.Request.Context(), service.CheckoutInput{
		Price:       priceValue(form.Price),
		ContestID:   form.ContestId,
		Email:       subject,
		DisplayName: name,
	})
	jsonObj(c, res, err)
}

// confirm takes the session id from the query string, or from a JSON body
// of the form {"sessionId": "..."}.
func (a *PaymentController) confirm(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" && c.Request.ContentLength != 0 {
		var body struct {
			SessionId string `json:"sessionId"`
		}
		if !bind(c, &body) {
			return
		}
		sessionID = body.SessionId
	}
	conf, err := a.payments.ConfirmPayment(c.Request.Context(), sessionID, session.GetSubject(c))
	if err != nil {
		fail(c, err)
		return
	}
	msg := "payment recorded"
	if !conf.Created {
		msg = "payment already recorded"
	}
	jsonMsgObj(c, msg, conf, nil)
}

func (a *PaymentController) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		fail(c, common.InvalidInput("unreadable body"))
		return
	}
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		signature = c.GetHeader("X-Webhook-Signature")
	}
	conf, err := a.payments.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if common.IsKind(err, common.KindInvalidInput) {
			logger.Warning("rejected payment webhook from", getRemoteIp(c))
		}
		fail(c, err)
		return
	}
	if conf == nil {
		c.JSON(http.StatusOK, entity.Msg{Success: true, Msg: "ignored"})
		return
	}
	jsonMsgObj(c, "received", conf, nil)
}

func (a *PaymentController) participants(c *gin.Context) {
	list, err := a.payments.ListParticipants(c.Request.Context(), c.Param("id"))
	jsonObj(c, list, err)
}

func (a *PaymentController) submitTask(c *gin.Context) {
	form := &submitForm{}
	if !bind(c, form) {
		return
	}
	sub, err := a.payments.SubmitTask(c.Request.Context(), c.Param("id"), session.GetSubject(c), form.Link)
	if err != nil {
		fail(c, err)
		return
	}
	jsonCreated(c, "task submitted", sub)
}

func (a *PaymentController) mine(c *gin.Context) {
	payments, err := a.payments.ListByEmail(c.Request.Context(), session.GetSubject(c), false)
	jsonObj(c, payments, err)
}

func (a *PaymentController) winnings(c *gin.Context) {
	payments, err := a.payments.ListByEmail(c.Request.Context(), session.GetSubject(c), true)
	jsonObj(c, payments, err)
}
