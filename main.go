// Package main provides the entry point of the eSIM fulfillment relay
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/amirphl/esim-relay/app/handlers"
	"github.com/amirphl/esim-relay/app/middleware"
	"github.com/amirphl/esim-relay/app/router"
	"github.com/amirphl/esim-relay/app/scheduler"
	"github.com/amirphl/esim-relay/app/services"
	businessflow "github.com/amirphl/esim-relay/business_flow"
	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router     router.Router
	config     *config.ProductionConfig
	server     *fiber.App
	store      *repository.Store
	cache      *redis.Client
	reconciler *scheduler.Reconciler
	stopFuncs  []func()
}

type options struct {
	envFile     string
	once        bool
	noScheduler bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid arguments: %v", err)
	}

	cfg, err := config.LoadProductionConfigFrom(opts.envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Logging)

	log.Printf("Starting esim-relay %s (%s)...", cfg.Deployment.Version, cfg.Deployment.Environment)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if opts.once {
		os.Exit(runOnce(app))
	}

	app.router.SetupRoutes()

	if cfg.Reconciler.Enabled && !opts.noScheduler {
		app.stopFuncs = append(app.stopFuncs, app.reconciler.Start(context.Background()))
		log.Printf("Reconciler started (interval=%s)", cfg.Reconciler.Interval)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}
	app.stopFuncs = nil

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	app.close()

	log.Println("Server stopped")
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("esim-relay", pflag.ContinueOnError)
	flagSet.StringVar(&opts.envFile, "env-file", ".env", "path to the environment file; missing files are ignored")
	flagSet.BoolVar(&opts.once, "once", false, "run one reconciler pass, print its report and exit")
	flagSet.BoolVar(&opts.noScheduler, "no-scheduler", false, "serve callbacks without the periodic reconciler")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// setupLogging points the standard logger at stdout, a rotated file, or both
func setupLogging(cfg config.LoggingConfig) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		log.Printf("Cannot create log directory for %s, logging to stdout: %v", cfg.FilePath, err)
		return
	}

	file := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	if cfg.Output == "file" {
		log.SetOutput(file)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
}

// openDatabase opens a pooled handle for the configured driver
func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		dialector = mysql.Open(dsn)
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		dialector = postgres.Open(dsn)
	}

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}
	if cfg.SlowQueryLog {
		gormCfg.Logger = logger.New(log.New(log.Writer(), "gorm ", log.LstdFlags), logger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

// initializeDatabase connects the record store and migrates the schema when enabled
func initializeDatabase(cfg config.DatabaseConfig) (*repository.Store, error) {
	store := repository.NewStore(func() (*gorm.DB, error) { return openDatabase(cfg) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Connect(ctx); err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := store.DB().AutoMigrate(
			&models.OrderRecord{},
			&models.ProgressNotification{},
			&models.CallbackEvent{},
		); err != nil {
			_ = store.Disconnect()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	log.Printf("Database connection established (%s) with %d max open connections, %d max idle connections",
		cfg.Driver, cfg.MaxOpenConns, cfg.MaxIdleConns)

	return store, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity issues.
// The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires the store, vendor clients, flows and HTTP layer
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	store, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		_ = store.Disconnect()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	app := &Application{config: cfg, store: store, cache: rc}

	var tokenCache services.TokenCache
	if rc != nil {
		tokenCache = services.NewRedisTokenCache(rc, cfg.Cache.RedisPrefix)
		app.stopFuncs = append(app.stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))
	} else {
		tokenCache = services.NewMemoryTokenCache()
	}

	orderRepo := repository.NewOrderRecordRepository(store)
	progressRepo := repository.NewProgressNotificationRepository(store)
	eventRepo := repository.NewCallbackEventRepository(store)

	catalog, err := services.LoadProductCatalog(cfg.Catalog.Path)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to load product catalog: %w", err)
	}

	provisioning := services.NewProvisioningClient(&cfg.Provisioning)
	redemption := services.NewRedemptionClient(&cfg.Redemption)
	notifier := services.NewNotificationClient(&cfg.Notification, cfg.Deployment.Domain, tokenCache)

	// Interfaces stay nil when the marketplace is off so the steps report disabled
	var source services.OrderSource
	var dispatcher services.Dispatcher
	if cfg.Marketplace.Enabled {
		marketplace := services.NewMarketplaceClient(&cfg.Marketplace)
		source = marketplace
		dispatcher = marketplace
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
		tokenCache,
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	fulfillmentFlow := businessflow.NewFulfillmentFlow(orderRepo, source, dispatcher, provisioning, catalog, businessflow.FulfillmentOptions{
		SubmitDelay: cfg.Reconciler.SubmitDelay,
		BatchSize:   cfg.Reconciler.BatchSize,
	})

	var lock scheduler.TickLock
	if rc != nil {
		lock = scheduler.NewRedisTickLock(rc, cfg.Cache.RedisPrefix, cfg.Reconciler.Interval)
	}
	app.reconciler = scheduler.NewReconciler(
		fulfillmentFlow,
		lock,
		scheduler.NewSchedulerLogger(cfg.Logging),
		cfg.Reconciler.Interval,
		cfg.Marketplace.Lookback,
	)

	callbackFlow := businessflow.NewCallbackFlow(orderRepo, progressRepo, eventRepo, redemption, notifier, cfg.Redemption.InterPinDelay)
	adminAuthFlow := businessflow.NewAdminAuthFlow(cfg.Admin.Username, cfg.Admin.PasswordHash, tokenService)
	adminOrderFlow := businessflow.NewAdminOrderFlow(orderRepo, eventRepo, fulfillmentFlow, redemption, app.reconciler)

	callbackHandler := handlers.NewCallbackHandler(callbackFlow)
	authHandler := handlers.NewAuthHandler(adminAuthFlow)
	adminOrderHandler := handlers.NewAdminOrderHandler(adminOrderFlow)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	app.router = router.NewFiberRouter(cfg, callbackHandler, authHandler, adminOrderHandler, authMiddleware)
	app.server = app.router.GetApp()

	return app, nil
}

// runOnce performs a single reconciler pass and prints its report; the result is the process exit code
func runOnce(app *Application) int {
	defer app.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report := app.reconciler.RunOnce(ctx)
	if report.Skipped {
		fmt.Println("reconciler run skipped: another run is in progress or the lock is unavailable")
		return 0
	}

	exitCode := 0
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Step", "Processed", "Succeeded", "Failed", "Skipped", "Error")
	for _, step := range report.Steps {
		errText := ""
		switch {
		case step.Disabled:
			errText = "disabled"
		case step.Err != nil:
			errText = step.Err.Error()
			exitCode = 1
		}
		_ = table.Append([]string{
			step.Step,
			strconv.Itoa(step.Processed),
			strconv.Itoa(step.Succeeded),
			strconv.Itoa(step.Failed),
			strconv.Itoa(step.Skipped),
			errText,
		})
	}
	if err := table.Render(); err != nil {
		log.Printf("Failed to render report: %v", err)
	}
	fmt.Printf("started %s, took %s\n", report.StartedAt.Format(time.RFC3339), report.Duration.Round(time.Millisecond))

	return exitCode
}

func (a *Application) close() {
	for _, fn := range a.stopFuncs {
		fn()
	}
	a.stopFuncs = nil

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Printf("Error closing redis: %v", err)
		}
		a.cache = nil
	}
	if a.store != nil {
		if err := a.store.Disconnect(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
		a.store = nil
	}
}
