package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mhasan-dev/course-market-api/api/swagger"
	"github.com/mhasan-dev/course-market-api/internal/gateway"
	"github.com/mhasan-dev/course-market-api/internal/handler"
	"github.com/mhasan-dev/course-market-api/internal/middleware"
	"github.com/mhasan-dev/course-market-api/internal/models"
	"github.com/mhasan-dev/course-market-api/internal/repository"
	"github.com/mhasan-dev/course-market-api/internal/service"
	"github.com/mhasan-dev/course-market-api/pkg/cache"
	"github.com/mhasan-dev/course-market-api/pkg/config"
	"github.com/mhasan-dev/course-market-api/pkg/database"
	"github.com/mhasan-dev/course-market-api/pkg/jobs"
	"github.com/mhasan-dev/course-market-api/pkg/logger"
	corsmiddleware "github.com/mhasan-dev/course-market-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mhasan-dev/course-market-api/pkg/middleware/requestid"
)

// @title Course Market API
// @version 1.0.0
// @description Course marketplace backend: catalog, selections, enrollments and payments.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	selectionRepo := repository.NewSelectionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Gateway.
	stripe := gateway.NewStripeGateway(cfg.Stripe, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	catalogSvc := service.NewCatalogService(classRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	selectionSvc := service.NewSelectionService(selectionRepo, classRepo, validate, logr)
	reconciliationSvc := service.NewReconciliationService(selectionRepo, classRepo, logr)
	paymentSvc := service.NewPaymentService(selectionRepo, classRepo, stripe, validate, logr, service.PaymentConfig{
		Currency:   cfg.Stripe.Currency,
		PendingAge: cfg.Sweep.PendingAge,
	})
	exportSvc := service.NewExportService(reconciliationSvc, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(catalogSvc, userSvc)
	selectionHandler := handler.NewSelectionHandler(selectionSvc, reconciliationSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, reconciliationSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	registerRoutes(r, cfg, authSvc, authHandler, userHandler, classHandler, selectionHandler, paymentHandler, metricsHandler, db, redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepQueue := startPaymentSweep(ctx, cfg.Sweep, paymentSvc, metricsSvc, logr)
	if sweepQueue != nil {
		defer sweepQueue.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	authSvc *service.AuthService,
	auth *handler.AuthHandler,
	users *handler.UserHandler,
	classes *handler.ClassHandler,
	selections *handler.SelectionHandler,
	payments *handler.PaymentHandler,
	metrics *handler.MetricsHandler,
	db *sqlx.DB,
	redisClient *redis.Client,
) {
	r.GET("/health", metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The API surface lives under the configured prefix; probes and metrics
	// stay at the engine root for the load balancer.
	root := r.Group(cfg.APIPrefix)

	root.POST("/auth/register", auth.Register)
	root.POST("/auth/login", auth.Login)

	// Public catalog.
	root.GET("/classes", classes.ListApproved)

	authed := root.Group("/")
	authed.Use(middleware.JWT(authSvc))

	// Users.
	authed.GET("/users", middleware.RequireRoles(models.RoleAdmin), users.List)
	authed.GET("/users/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), users.Get)
	authed.PATCH("/users/:email/role", middleware.RequireRoles(models.RoleAdmin), users.PromoteRole)

	// Catalog management.
	authed.POST("/classes", middleware.RequireRoles(models.RoleInstructor), classes.Create)
	authed.GET("/classes/all", middleware.RequireRoles(models.RoleAdmin), classes.ListAll)
	authed.GET("/classes/instructor/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), classes.ListByInstructor)
	authed.PATCH("/classes/:id", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), classes.UpdateDescriptor)
	authed.PATCH("/classes/:id/status", middleware.RequireRoles(models.RoleAdmin), classes.SetStatus)
	authed.PATCH("/classes/:id/feedback", middleware.RequireRoles(models.RoleAdmin), classes.SetFeedback)

	// Selection ledger.
	authed.POST("/selectOrEnroll", middleware.RequireRoles(models.RoleStudent), selections.Select)
	authed.GET("/selectOrEnroll", selections.Get)
	authed.DELETE("/selectedClass/delete", selections.Unselect)
	authed.GET("/classes/selected/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), selections.Selected)
	authed.GET("/classes/enrolled/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), selections.Enrolled)

	// Payments.
	authed.POST("/create-payment-intent", middleware.RequireRoles(models.RoleStudent), payments.CreateIntent)
	authed.PATCH("/enroll/payments", middleware.RequireRoles(models.RoleStudent), payments.Confirm)
	authed.GET("/classes/payments-history/:email", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), payments.History)
	authed.GET("/classes/payments-history/:email/export", middleware.RBAC(string(models.RoleAdmin), middleware.SelfParam), payments.ExportHistory)
}

// startPaymentSweep schedules periodic reconciliation of PENDING_PAYMENT
// entries through the background job queue. Returns nil when disabled.
func startPaymentSweep(ctx context.Context, cfg config.SweepConfig, payments *service.PaymentService, metrics *service.MetricsService, logr *zap.Logger) *jobs.Queue {
	if !cfg.Enabled {
		return nil
	}

	queue := jobs.NewQueue("payment-sweep", func(ctx context.Context, job jobs.Job) error {
		confirmed, err := payments.Sweep(ctx)
		if err != nil {
			return err
		}
		if confirmed > 0 {
			metrics.AddSweptPayments(confirmed)
		}
		return nil
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logr,
	})
	queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				job := jobs.Job{
					ID:       fmt.Sprintf("sweep-%d", tick.UnixNano()),
					Type:     "payment-sweep",
					Enqueued: tick,
				}
				if err := queue.Enqueue(job); err != nil {
					logr.Warn("failed to enqueue payment sweep", zap.Error(err))
				}
			}
		}
	}()

	return queue
}
