package controller

import (
	"net"
	"net/http"
	"strings"

	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/entity"

	"github.com/gin-gonic/gin"
)

// getRemoteIp extracts the real IP address from the request headers or remote address.
func getRemoteIp(c *gin.Context) string {
	value := c.GetHeader("X-Real-IP")
	if value != "" {
		return value
	}
	value = c.GetHeader("X-Forwarded-For")
	if value != "" {
		ips := strings.Split(value, ",")
		return strings.TrimSpace(ips[0])
	}
	addr := c.Request.RemoteAddr
	ip, _, _ := net.SplitHostPort(addr)
	return ip
}

func jsonMsg(c *gin.Context, msg string, err error) {
	jsonMsgObj(c, msg, nil, err)
}

func jsonObj(c *gin.Context, obj any, err error) {
	jsonMsgObj(c, "", obj, err)
}

// jsonMsgObj writes a 200 envelope, or the failure envelope of err.
func jsonMsgObj(c *gin.Context, msg string, obj any, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entity.Msg{Success: true, Msg: msg, Obj: obj})
}

func jsonCreated(c *gin.Context, msg string, obj any) {
	c.JSON(http.StatusCreated, entity.Msg{Success: true, Msg: msg, Obj: obj})
}

// fail maps err to its status and code. Internal causes are logged and
// replaced by a generic message.
func fail(c *gin.Context, err error) {
	e := common.AsError(err)
	switch e.Kind {
	case common.KindInternal:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	case common.KindGateway:
		logger.Warningf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(e.Kind.HTTPStatus(), entity.Msg{Success: false, Msg: e.Msg, Code: e.Code})
}

// bind decodes the JSON body into obj, failing the request with 400 on error.
func bind(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		fail(c, common.InvalidInput("invalid request body"))
		return false
	}
	return true
}
