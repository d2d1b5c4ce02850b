package controller

import (
	"net/http"
	"strconv"

	"github.com/createarena/arena/config"
	"github.com/createarena/arena/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ServerController reports process health and recent logs.
type ServerController struct {
	BaseController
	db *gorm.DB
}

func NewServerController(g *gin.RouterGroup, guards Guards, db *gorm.DB) *ServerController {
	a := &ServerController{BaseController: BaseController{guards: guards}, db: db}
	a.initRouter(g)
	return a
}

func (a *ServerController) initRouter(g *gin.RouterGroup) {
	g.GET("/healthz", a.health)

	admin := a.admin(g)
	admin.GET("/admin/logs", a.getLogs)
}

func (a *ServerController) health(c *gin.Context) {
	status := gin.H{"name": config.GetName(), "version": config.GetVersion(), "db": "ok"}
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		logger.Warning("health check:", err)
		status["db"] = "unavailable"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *ServerController) getLogs(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count <= 0 {
		count = 100
	}
	jsonObj(c, logger.GetLogs(count, c.DefaultQuery("level", "info")), nil)
}
