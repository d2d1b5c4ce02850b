package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/createarena/arena/config"
	"github.com/createarena/arena/database"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/obs"
	"github.com/createarena/arena/web"
	"github.com/createarena/arena/web/cache"
	"github.com/createarena/arena/web/events"
	"github.com/createarena/arena/web/gateway"
	"github.com/createarena/arena/web/identity"
	"github.com/createarena/arena/web/service"

	"github.com/joho/godotenv"
	"github.com/op/go-logging"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func initLogger() {
	switch config.GetLogLevel() {
	case config.Debug:
		logger.InitLogger(logging.DEBUG)
	case config.Info:
		logger.InitLogger(logging.INFO)
	case config.Notice:
		logger.InitLogger(logging.NOTICE)
	case config.Warn:
		logger.InitLogger(logging.WARNING)
	case config.Error:
		logger.InitLogger(logging.ERROR)
	default:
		log.Fatal("unknown log level:", config.GetLogLevel())
	}
}

func openDB() (*config.App, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg.Database())
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// resources are the long-lived clients built for one server run.
type resources struct {
	db            *gorm.DB
	cache         *cache.Cache
	events        events.Publisher
	shutdownTrace func(context.Context) error
}

func (r *resources) close() {
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			logger.Warning("close event publisher:", err)
		}
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			logger.Warning("close cache:", err)
		}
	}
	if r.shutdownTrace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.shutdownTrace(ctx); err != nil {
			logger.Warning("flush traces:", err)
		}
	}
	if r.db != nil {
		if err := database.Close(r.db); err != nil {
			logger.Warning("close database:", err)
		}
	}
}

func newServer(cfg *config.App, res *resources) (*web.Server, error) {
	var err error
	if res.db == nil {
		if res.db, err = database.Open(cfg.Database()); err != nil {
			return nil, err
		}
	}
	if res.cache, err = cache.New(cfg.RedisAddr); err != nil {
		return nil, err
	}
	if res.cache.IsEmbedded() {
		logger.Info("no redis address configured, using embedded cache")
	}
	if res.events, err = events.New(cfg.RabbitURL, cfg.RabbitExchange); err != nil {
		return nil, err
	}
	if res.shutdownTrace, err = obs.InitTracer(context.Background(), cfg.OtelEndpoint, cfg.Environment); err != nil {
		return nil, err
	}

	verifier, err := identity.New(cfg.IdentityCertsURL, cfg.IdentityHMACSecret, cfg.IdentityIssuer, cfg.IdentityAudience)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("payment gateway: %s", gw.Name())

	users := service.NewUserService(res.db, res.events)
	return web.NewServer(cfg, web.Deps{
		DB:       res.db,
		Verifier: verifier,
		Users:    users,
		Contests: service.NewContestService(res.db, res.cache, res.events),
		Payments: service.NewPaymentService(res.db, gw, res.cache, res.events, cfg.SiteOrigin, cfg.PaymentCurrency),
		Creators: service.NewCreatorService(res.db, res.events),
	}), nil
}

func runWebServer() {
	log.Printf("%v %v", config.GetName(), config.GetVersion())
	initLogger()
	defer logger.CloseLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	res := &resources{}
	defer res.close()
	server, err := newServer(cfg, res)
	if err != nil {
		logger.Error(err)
		return
	}
	if err = server.Start(); err != nil {
		logger.Error(err)
		return
	}

	sigCh := make(chan os.Signal, 1)
	// Trap shutdown signals
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received %v, shutting down", sig)
	if err := server.Stop(); err != nil {
		logger.Warning("stop server err:", err)
	}
}

func migrateDB() {
	_, db, err := openDB()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer database.Close(db)
	fmt.Println("database migrated")
}

func bootstrapAdmin(email, name string) {
	_, db, err := openDB()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer database.Close(db)

	users := service.NewUserService(db, nil)
	admin, err := users.BootstrapAdmin(context.Background(), email, name)
	if err != nil {
		fmt.Println("bootstrap admin failed:", err)
		os.Exit(1)
	}
	fmt.Printf("original admin: %s (%s)\n", admin.Email, admin.Id)
}

func showAdmin() {
	_, db, err := openDB()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer database.Close(db)

	admin, err := service.NewUserService(db, nil).OriginalAdmin(context.Background())
	if err != nil {
		fmt.Println("get original admin failed:", err)
		os.Exit(1)
	}
	if admin == nil {
		fmt.Println("no admin yet; run: arena admin bootstrap --email <email>")
		return
	}
	fmt.Println("original admin:", admin.Email)
	fmt.Println("since:", admin.CreatedAt.Format(time.RFC3339))
}

func issueToken(email string, ttl time.Duration) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if cfg.IdentityHMACSecret == "" {
		fmt.Println("ARENA_IDENTITY_HMAC_SECRET is not set")
		os.Exit(1)
	}
	token, err := identity.SignHMAC([]byte(cfg.IdentityHMACSecret), email, cfg.IdentityIssuer, cfg.IdentityAudience, ttl)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Println("load .env:", err)
	}

	var rootCmd = &cobra.Command{
		Use:   "arena",
		Short: "Contest marketplace backend",
	}

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the API server",
		Run: func(cmd *cobra.Command, args []string) {
			runWebServer()
		},
	}

	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Run: func(cmd *cobra.Command, args []string) {
			migrateDB()
		},
	}

	var adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Manage the original admin",
	}

	var bootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Make a user the first admin; fails once any admin exists",
		Run: func(cmd *cobra.Command, args []string) {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			bootstrapAdmin(email, name)
		},
	}
	bootstrapCmd.Flags().String("email", "", "email of the first admin")
	bootstrapCmd.Flags().String("name", "", "display name when the user does not exist yet")
	_ = bootstrapCmd.MarkFlagRequired("email")

	var showCmd = &cobra.Command{
		Use:   "show",
		Short: "Show the original admin",
		Run: func(cmd *cobra.Command, args []string) {
			showAdmin()
		},
	}

	var tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a development token signed with the HMAC identity secret",
		Run: func(cmd *cobra.Command, args []string) {
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			issueToken(email, ttl)
		},
	}
	tokenCmd.Flags().String("email", "", "subject email")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("email")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.GetName(), config.GetVersion())
		},
	}

	adminCmd.AddCommand(bootstrapCmd, showCmd)
	rootCmd.AddCommand(runCmd, migrateCmd, adminCmd, tokenCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
