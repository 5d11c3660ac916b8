// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"extractlab-go/internal/config"
	"extractlab-go/internal/handler"
	"extractlab-go/internal/middleware"
	"extractlab-go/internal/model"
	"extractlab-go/internal/pipeline"
	"extractlab-go/internal/repository"
	"extractlab-go/internal/service"
	"extractlab-go/pkg/database"
	"extractlab-go/pkg/es"
	"extractlab-go/pkg/hash"
	"extractlab-go/pkg/kafka"
	"extractlab-go/pkg/llm"
	"extractlab-go/pkg/log"
	"extractlab-go/pkg/metrics"
	"extractlab-go/pkg/storage"
	"extractlab-go/pkg/tika"
	"extractlab-go/pkg/token"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、缓存与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)
	metrics.Register()

	// 3.1 同步表结构
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Namespace{},
		&model.UseCase{},
		&model.Template{},
		&model.Prompt{},
		&model.ExtractionRun{},
		&model.EvaluationRun{},
	); err != nil {
		log.Fatal("数据库表结构同步失败", err)
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	nsRepo := repository.NewNamespaceRepository(database.DB)
	ucRepo := repository.NewUseCaseRepository(database.DB)
	tplRepo := repository.NewTemplateRepository(database.DB)
	promptRepo := repository.NewPromptRepository(database.DB)
	runRepo := repository.NewRunRepository(database.DB, database.RDB)
	evalRepo := repository.NewEvaluationRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	llmClient := llm.NewClient(cfg.LLM)
	runEvents := service.NewRunEventHub()

	userService := service.NewUserService(userRepo, jwtManager)
	nsService := service.NewNamespaceService(nsRepo)
	ucService := service.NewUseCaseService(ucRepo, nsRepo)
	tplService := service.NewTemplateService(tplRepo, ucRepo)
	promptService := service.NewPromptService(promptRepo, tplRepo, runRepo)
	runService := service.NewRunService(runRepo, tplRepo, promptRepo, runEvents)
	evalService := service.NewEvaluationService(evalRepo, runRepo, tplRepo, cfg.Elasticsearch.IndexName)
	iterService := service.NewIterationService(evalRepo, runRepo, promptRepo, promptService, runService)

	// 6. 初始化抽取管线并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(runService, promptService, evalService, llmClient, tikaClient, cfg.MinIO.BucketName)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6.1 确保存在管理员账号
	seedAdminUser(userRepo)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// 8. 注册路由
	authMW := middleware.AuthMiddleware(jwtManager, userService)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewUserHandler(userService).Refresh)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(authMW)
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Namespace 路由组，需要认证
		nsHandler := handler.NewNamespaceHandler(nsService)
		namespaces := apiV1.Group("/namespaces")
		namespaces.Use(authMW)
		{
			namespaces.POST("", nsHandler.Create)
			namespaces.GET("", nsHandler.List)
			namespaces.GET("/:id", nsHandler.Get)
			namespaces.PUT("/:id/settings", nsHandler.UpdateSettings)
			namespaces.PUT("/:id/active", nsHandler.SetActive)
			// 级联删除不可恢复，要求管理员权限
			namespaces.DELETE("/:id", middleware.AdminAuthMiddleware(), nsHandler.Delete)

			// UseCase 子路由
			ucHandler := handler.NewUseCaseHandler(ucService)
			namespaces.POST("/:id/usecases", ucHandler.Create)
			namespaces.GET("/:id/usecases", ucHandler.List)
		}

		ucHandler := handler.NewUseCaseHandler(ucService)
		usecases := apiV1.Group("/usecases")
		usecases.Use(authMW)
		{
			usecases.GET("/:id", ucHandler.Get)
			usecases.PUT("/:id/ingestion", ucHandler.UpdateIngestion)
			usecases.PUT("/:id/active", ucHandler.SetActive)
			usecases.DELETE("/:id", middleware.AdminAuthMiddleware(), ucHandler.Delete)

			// Template 子路由
			tplHandler := handler.NewTemplateHandler(tplService)
			usecases.POST("/:id/templates", tplHandler.Create)
			usecases.GET("/:id/templates", tplHandler.List)
			usecases.GET("/:id/templates/:name/versions", tplHandler.Versions)
		}

		tplHandler := handler.NewTemplateHandler(tplService)
		templates := apiV1.Group("/templates")
		templates.Use(authMW)
		{
			templates.GET("/:id", tplHandler.Get)
			templates.PUT("/:id/active", tplHandler.SetActive)
			templates.DELETE("/:id", middleware.AdminAuthMiddleware(), tplHandler.Delete)

			// Prompt 子路由
			promptHandler := handler.NewPromptHandler(promptService)
			templates.POST("/:id/prompts", promptHandler.Create)
			templates.GET("/:id/prompts", promptHandler.List)
			templates.GET("/:id/prompts/:name/versions", promptHandler.Versions)

			// Run 列表与谱系
			templates.GET("/:id/runs", handler.NewRunHandler(runService).List)
			templates.GET("/:id/prompts/:name/lineage", handler.NewIterationHandler(iterService).Lineage)
		}

		promptHandler := handler.NewPromptHandler(promptService)
		prompts := apiV1.Group("/prompts")
		prompts.Use(authMW)
		{
			prompts.GET("/:id", promptHandler.Get)
			prompts.PUT("/:id/active", promptHandler.SetActive)
			prompts.DELETE("/:id", promptHandler.Delete)
		}

		// Run 路由组
		runHandler := handler.NewRunHandler(runService)
		evalHandler := handler.NewEvaluationHandler(evalService)
		runs := apiV1.Group("/runs")
		runs.Use(authMW)
		{
			runs.POST("", runHandler.Create)
			runs.POST("/:id/start", runHandler.Start)
			runs.POST("/:id/complete", runHandler.Complete)
			runs.POST("/:id/fail", runHandler.Fail)
			runs.GET("/:id", runHandler.Get)
			runs.GET("/:id/status", runHandler.Status)
			runs.GET("/:id/output", runHandler.Output)
			runs.POST("/:id/cancel", runHandler.Cancel)
			runs.POST("/:id/retry", runHandler.Retry)

			// Evaluation 子路由
			runs.POST("/:id/evaluations", evalHandler.Evaluate)
			runs.POST("/:id/evaluations/manual", evalHandler.RecordManual)
			runs.GET("/:id/evaluations", evalHandler.ListByRun)
		}
		// WebSocket 状态订阅不走 Authorization 头，和 chat 一样挂在根路由
		r.GET("/runs/:id/watch", runHandler.Watch)

		evaluations := apiV1.Group("/evaluations")
		evaluations.Use(authMW)
		{
			evaluations.GET("/search", evalHandler.Search)
			evaluations.GET("/:id", evalHandler.Get)
		}

		// Iteration 路由组
		iterations := apiV1.Group("/iterations")
		iterations.Use(authMW)
		{
			iterations.POST("", handler.NewIterationHandler(iterService).Iterate)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// seedAdminUser 确保存在默认管理员账号（幂等）。
// 初始密码仅用于首次部署，应在上线后立即修改。
func seedAdminUser(userRepo repository.UserRepository) {
	if _, err := userRepo.FindByUsername("admin"); err == nil {
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("seedAdminUser: 查询管理员账号失败: %v", err)
		return
	}

	hashed, err := hash.HashPassword("admin123456")
	if err != nil {
		log.Warnf("seedAdminUser: 生成密码哈希失败: %v", err)
		return
	}
	admin := &model.User{
		Username: "admin",
		Password: hashed,
		Role:     "ADMIN",
	}
	if err := userRepo.Create(admin); err != nil {
		log.Warnf("seedAdminUser: 创建管理员账号失败: %v", err)
		return
	}
	log.Info("已创建默认管理员账号 'admin'")
}
