// Package web provides the arena HTTP server: routing, middleware and the
// background jobs that run next to it.
package web

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/createarena/arena/config"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/controller"
	"github.com/createarena/arena/web/identity"
	"github.com/createarena/arena/web/job"
	"github.com/createarena/arena/web/service"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Deps are the collaborators the server is assembled from.
type Deps struct {
	DB       *gorm.DB
	Verifier identity.Verifier
	Users    *service.UserService
	Contests *service.ContestService
	Payments *service.PaymentService
	Creators *service.CreatorService
}

// Server is the arena HTTP server together with its scheduled jobs.
type Server struct {
	httpServer *http.Server
	listener   net.Listener

	cfg  *config.App
	deps Deps

	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(cfg *config.App, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{cfg: cfg, deps: deps, ctx: ctx, cancel: cancel}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	if config.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.DefaultWriter = io.Discard
		gin.DefaultErrorWriter = io.Discard
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if config.IsDebug() {
		engine.Use(gin.Logger())
	}
	// webhook signatures are computed over the raw body
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/webhooks/"})))

	g := engine.Group("/")
	guards := controller.NewGuards(s.deps.Verifier, s.deps.Users)
	controller.NewUserController(g, guards, s.deps.Users)
	controller.NewContestController(g, guards, s.deps.Contests)
	controller.NewPaymentController(g, guards, s.deps.Payments)
	controller.NewCreatorController(g, guards, s.deps.Creators)
	controller.NewServerController(g, guards, s.deps.DB)

	engine.NoRoute(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNotFound)
	})
	return engine
}

// startTask schedules the background jobs.
func (s *Server) startTask() error {
	schedule := s.cfg.ReconcileCron
	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddJob(schedule, job.NewReconcileParticipantsJob(s.deps.Payments)); err != nil {
		return err
	}
	logger.Infof("reconcile participants job scheduled at %s", schedule)
	return nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() (err error) {
	defer func() {
		if err != nil {
			_ = s.Stop()
		}
	}()

	loc, err := time.LoadLocation(s.cfg.TimeZone)
	if err != nil {
		return err
	}
	s.cron = cron.New(cron.WithLocation(loc))
	if err = s.startTask(); err != nil {
		return err
	}
	s.cron.Start()

	listenAddr := net.JoinHostPort(s.cfg.Listen, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	logger.Info("Web server running HTTP on", listener.Addr())

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end when the server stops
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server stopped:", err)
		}
	}()
	return nil
}

// Stop shuts down the HTTP server and the scheduler.
func (s *Server) Stop() error {
	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	var err1, err2 error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err1 = s.httpServer.Shutdown(ctx)
	}
	if s.listener != nil {
		// Shutdown has usually closed it already
		if err := s.listener.Close(); !errors.Is(err, net.ErrClosed) {
			err2 = err
		}
	}
	return common.Combine(err1, err2)
}

// GetCron returns the server's cron scheduler instance.
func (s *Server) GetCron() *cron.Cron { return s.cron }
