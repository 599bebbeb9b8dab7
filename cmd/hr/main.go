package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-hr/internal/config"
	"github.com/bitfantasy/nimo-hr/internal/hr/entity"
	"github.com/bitfantasy/nimo-hr/internal/hr/handler"
	"github.com/bitfantasy/nimo-hr/internal/hr/repository"
	"github.com/bitfantasy/nimo-hr/internal/hr/service"
	"github.com/bitfantasy/nimo-hr/internal/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-hr service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// AutoMigrate HR实体
	if err := db.AutoMigrate(
		&entity.Department{},
		&entity.User{},
		&entity.AppraisalWorkflow{},
		&entity.WorkflowStep{},
		&entity.ReviewTemplate{},
		&entity.TemplateQuestion{},
		&entity.AppraisalPeriod{},
		&entity.PeriodAssignment{},
		&entity.Appraisal{},
		&entity.AuditLog{},
		&entity.Notification{},
	); err != nil {
		zapLogger.Warn("AutoMigrate HR tables warning", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// 初始化Redis
	rdb := initRedis(cfg.Redis)

	// 初始化依赖
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, rdb, cfg, zapLogger)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证 (无需登录)
		auth := v1.Group("/auth")
		{
			auth.GET("/feishu/login-url", h.Auth.GetLoginURL)
			auth.POST("/feishu/callback", h.Auth.Callback)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			// 当前用户
			authorized.GET("/auth/me", h.Auth.Me)
			authorized.POST("/auth/logout", h.Auth.Logout)

			// 员工管理
			users := authorized.Group("/users")
			{
				users.GET("", h.User.List)
				users.GET("/:id", h.User.Get)
				users.PUT("/:id", middleware.RequireRole(entity.RoleHR), h.User.Update)
			}

			// 考核工作流（HR维护）
			workflows := authorized.Group("/workflows")
			{
				workflows.GET("", h.Workflow.List)
				workflows.GET("/:id", h.Workflow.Get)
				workflows.POST("", middleware.RequireRole(entity.RoleHR), h.Workflow.Create)
				workflows.PUT("/:id", middleware.RequireRole(entity.RoleHR), h.Workflow.Update)
				workflows.DELETE("/:id", middleware.RequireRole(entity.RoleHR), h.Workflow.Delete)
				workflows.POST("/:id/set-default", middleware.RequireRole(entity.RoleHR), h.Workflow.SetDefault)
			}

			// 评审模板（HR维护）
			templates := authorized.Group("/templates")
			{
				templates.GET("", h.Template.List)
				templates.GET("/:id", h.Template.Get)
				templates.POST("", middleware.RequireRole(entity.RoleHR), h.Template.Create)
				templates.PUT("/:id", middleware.RequireRole(entity.RoleHR), h.Template.Update)
				templates.DELETE("/:id", middleware.RequireRole(entity.RoleHR), h.Template.Delete)
			}

			// 考核周期（HR维护）
			periods := authorized.Group("/periods")
			{
				periods.GET("", h.Period.List)
				periods.GET("/:id", h.Period.Get)
				periods.POST("", middleware.RequireRole(entity.RoleHR), h.Period.Create)
				periods.PUT("/:id", middleware.RequireRole(entity.RoleHR), h.Period.Update)
				periods.DELETE("/:id", middleware.RequireRole(entity.RoleHR), h.Period.Delete)
				periods.GET("/:id/assignments", middleware.RequireRole(entity.RoleHR), h.Period.ListAssignments)
				periods.POST("/:id/assignments", middleware.RequireRole(entity.RoleHR), h.Period.AddAssignment)
				periods.DELETE("/:id/assignments/:userId", middleware.RequireRole(entity.RoleHR), h.Period.RemoveAssignment)
				periods.GET("/:id/export", middleware.RequireRole(entity.RoleHR), middleware.RequirePermission("appraisal.export"), h.Period.Export)
			}

			// 考核实例
			appraisals := authorized.Group("/appraisals")
			{
				appraisals.POST("", middleware.RequireRole(entity.RoleHR), h.Appraisal.Initiate)
				appraisals.GET("", h.Appraisal.List)
				appraisals.GET("/:id", h.Appraisal.Get)
				appraisals.GET("/:id/history", h.Appraisal.History)
				appraisals.POST("/:id/reviews", h.Appraisal.SubmitReview)
				appraisals.POST("/:id/accept", h.Appraisal.Accept)
				appraisals.POST("/:id/reject", h.Appraisal.Reject)
				appraisals.PUT("/:id/admin-version", middleware.RequireRole(entity.RoleHR), h.Appraisal.UpdateAdminVersion)
				appraisals.POST("/bulk-delete", middleware.RequireRole(entity.RoleHRAdmin), h.Appraisal.BulkDelete)

				// 委员会共享评分
				appraisals.POST("/:id/questions/:questionId/lock", h.Committee.LockQuestion)
				appraisals.POST("/:id/questions/:questionId/unlock", h.Committee.UnlockQuestion)
				appraisals.PUT("/:id/committee-review", h.Committee.SaveReview)
				appraisals.POST("/:id/committee-review/finalize", h.Committee.Finalize)
				appraisals.PUT("/:id/commendations", h.Committee.SaveCommendation)
			}

			// 站内通知
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.POST("/:id/read", h.Notification.MarkRead)
				notifications.POST("/read-all", h.Notification.MarkAllRead)
			}

			// 审计日志（HR可查）
			authorized.GET("/audit-logs", middleware.RequireRole(entity.RoleHR), h.Audit.List)
		}
	}
}
