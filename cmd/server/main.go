// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lostfound-go/internal/config"
	"lostfound-go/internal/feed"
	"lostfound-go/internal/handler"
	"lostfound-go/internal/middleware"
	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
	"lostfound-go/internal/service"
	"lostfound-go/pkg/database"
	"lostfound-go/pkg/imaging"
	"lostfound-go/pkg/kafka"
	"lostfound-go/pkg/llm"
	"lostfound-go/pkg/log"
	"lostfound-go/pkg/storage"
	"lostfound-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("LOSTFOUND_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与可选的 MinIO
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	var imageStore storage.ImageStore
	if cfg.MinIO.Enabled() {
		store, err := storage.InitMinIO(cfg.MinIO)
		if err != nil {
			log.Errorf("MinIO 初始化失败，图片将不会归档: %v", err)
		} else {
			imageStore = store
		}
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	itemRepository := repository.NewItemRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)

	// 5. 信息流事件：有 Kafka 时经由 topic 广播到所有实例，否则只在进程内广播
	hub := feed.NewHub()
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var publisher service.EventPublisher = hub
	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = feed.NewRelay(producer, hub)
		go kafka.StartConsumer(consumerCtx, cfg.Kafka, hub.Broadcast)
	}

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	normalizer := imaging.NewNormalizer(imaging.Options{
		MaxUploadBytes:  cfg.Image.MaxUploadBytes,
		MaxEncodedBytes: cfg.Image.MaxEncodedBytes,
		MaxDimension:    cfg.Image.MaxDimension,
	})
	llmClient := llm.NewClient(cfg.LLM)

	userService := service.NewUserService(userRepository, jwtManager, database.RDB, cfg.Auth)
	feedService := service.NewFeedService(itemRepository, normalizer, imageStore, publisher, cfg.Feed.MaxPosts)
	chatService := service.NewChatService(llmClient, conversationRepo, feedService, cfg.LLM)
	conversationService := service.NewConversationService(conversationRepo)
	adminService := service.NewAdminService(userRepository, chatService)

	// 信息流每次变化都要让所有对话重新注入知识库
	hub.OnEvent(func(ctx context.Context, ev model.FeedEvent) {
		if err := chatService.Invalidate(ctx); err != nil {
			log.Errorf("信息流变化后重置对话失败, event: %s, err: %v", ev.Type, err)
		}
	})

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	itemHandler := handler.NewItemHandler(feedService, normalizer.Options().MaxUploadBytes)
	chatHandler := handler.NewChatHandler(chatService, userService)
	feedHandler := handler.NewFeedHandler(feedService, userService, hub)
	authRequired := middleware.AuthMiddleware(userService)

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(authRequired)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
				authed.GET("/conversation", handler.NewConversationHandler(conversationService).GetConversations)
			}
		}

		items := apiV1.Group("/items")
		items.Use(authRequired)
		{
			items.GET("", itemHandler.List)
			items.POST("", itemHandler.Create)
			items.DELETE("/:id", itemHandler.Delete)
			items.GET("/:id/image", itemHandler.ImageURL)
		}

		chat := apiV1.Group("/chat")
		chat.Use(authRequired)
		{
			chat.POST("/ask", chatHandler.Ask)
			chat.POST("/reset", chatHandler.Reset)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(authRequired, middleware.AdminAuthMiddleware())
		{
			adminHandler := handler.NewAdminHandler(adminService)
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.PUT("/users/:userId/role", adminHandler.SetUserRole)
			admin.POST("/conversations/reset", adminHandler.ResetConversations)
		}
	}

	// WebSocket 路由，token 放在路径中
	r.GET("/chat/:token", chatHandler.Handle)
	r.GET("/feed/:token", feedHandler.Handle)

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	database.Close()
	log.Info("服务已优雅关闭")
}
