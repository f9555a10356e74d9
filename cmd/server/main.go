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

	"portfolio-go/internal/config"
	"portfolio-go/internal/handler"
	"portfolio-go/internal/middleware"
	"portfolio-go/internal/model"
	"portfolio-go/internal/pipeline"
	"portfolio-go/internal/repository"
	"portfolio-go/internal/service"
	"portfolio-go/pkg/database"
	"portfolio-go/pkg/es"
	"portfolio-go/pkg/github"
	"portfolio-go/pkg/kafka"
	"portfolio-go/pkg/llm"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/mail"
	"portfolio-go/pkg/storage"
	"portfolio-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	// 1. 加载 .env（可选）并初始化配置
	_ = godotenv.Load()
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	components := map[string]bool{}

	// 3. 初始化可选的基础设施。未配置的组件保持为 nil 接口，对应功能自动降级。
	var (
		contactRepo      repository.ContactRepository
		exchangeRepo     repository.ExchangeRepository
		conversationRepo repository.ConversationRepository
		rdb              *redis.Client
	)
	if cfg.Database.MySQL.DSN != "" {
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN, &model.ContactSubmission{}, &model.ChatExchange{})
		if err != nil {
			log.Errorf("MySQL 初始化失败，联系表单与问答记录将不会持久化: %v", err)
		} else {
			contactRepo = repository.NewContactRepository(db)
			exchangeRepo = repository.NewExchangeRepository(db)
			components["mysql"] = true
		}
	}
	if cfg.Database.Redis.Addr != "" {
		client, err := database.InitRedis(rootCtx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Errorf("Redis 初始化失败，会话历史将只依赖客户端传入: %v", err)
		} else {
			rdb = client
			conversationRepo = repository.NewConversationRepository(rdb, cfg.Chat.StoredHistoryLimit)
			components["redis"] = true
		}
	}

	githubOpts := []service.GitHubOption{}
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewSnapshotStore(rootCtx, cfg.MinIO)
		if err != nil {
			log.Errorf("MinIO 初始化失败，快照不会归档: %v", err)
		} else {
			githubOpts = append(githubOpts, service.WithSnapshotArchive(store))
			components["minio"] = true
		}
	}
	if cfg.Elasticsearch.Addresses != "" {
		index, err := es.NewRepoIndex(cfg.Elasticsearch)
		if err != nil {
			log.Errorf("Elasticsearch 初始化失败，仓库搜索退化为内存匹配: %v", err)
		} else {
			githubOpts = append(githubOpts, service.WithRepoIndexer(index))
			components["elasticsearch"] = true
		}
	}

	// 4. 问答审计：有 Kafka 时异步写入，否则同步写入 MySQL。
	var publisher service.ExchangePublisher
	var producer *kafka.Producer
	if exchangeRepo != nil {
		processor := pipeline.NewProcessor(exchangeRepo)
		if cfg.Kafka.Brokers != "" {
			producer = kafka.NewProducer(cfg.Kafka)
			publisher = producer
			go kafka.StartConsumer(rootCtx, cfg.Kafka, processor)
			components["kafka"] = true
		} else {
			publisher = processor
		}
	}

	// 5. 初始化 Service (依赖注入)
	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" {
		jwtSecret = uuid.NewString()
		log.Warn("未配置 jwt.secret，使用随机密钥，重启后管理员 token 失效")
	}
	jwtManager := token.NewJWTManager(jwtSecret, cfg.JWT.AccessTokenExpireHours)

	githubClient := github.NewClient(cfg.GitHub.APIBase, cfg.GitHub.Token, cfg.GitHub.Timeout)
	if !githubClient.Authenticated() {
		log.Warn("未配置 GITHUB_TOKEN，以匿名身份访问 GitHub API")
	}
	githubService := service.NewGitHubService(githubClient, cfg.GitHub, githubOpts...)
	providers := llm.NewProviders(cfg.LLM)
	chatService := service.NewChatService(cfg.LLM, cfg.Chat, cfg.Prompt, providers, githubService, conversationRepo, publisher)
	sender := mail.NewResendSender(cfg.Mail.APIKey)
	if !sender.Configured() {
		log.Warn("未配置 RESEND_API_KEY，联系表单将返回服务不可用")
	}
	contactService := service.NewContactService(cfg.Contact, cfg.Mail, sender, contactRepo)
	adminService := service.NewAdminService(cfg.Admin, jwtManager, contactRepo, exchangeRepo, githubService)

	chatHandler := handler.NewChatHandler(chatService, cfg.Server.RequestTimeout)
	githubHandler := handler.NewGitHubHandler(githubService)
	contactHandler := handler.NewContactHandler(contactService)
	adminHandler := handler.NewAdminHandler(adminService)
	healthHandler := handler.NewHealthHandler(components)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowedOrigins))

	// 7. 注册路由
	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.Health)
		// WebSocket 连接是长连接，单条消息的超时在 handler 内部控制
		api.GET("/chat/ws", middleware.RateLimit(cfg.RateLimit.ChatPerMinute, cfg.RateLimit.Burst), chatHandler.Handle)

		timed := api.Group("", middleware.Timeout(cfg.Server.RequestTimeout))

		chat := timed.Group("", middleware.RateLimit(cfg.RateLimit.ChatPerMinute, cfg.RateLimit.Burst))
		{
			chat.POST("/chat", chatHandler.Chat)
			chat.POST("/chat-simple", chatHandler.ChatSimple)
			chat.POST("/chat-inspector", chatHandler.Inspector)
			chat.POST("/chat-inspector-simple", chatHandler.InspectorSimple)
		}

		repos := timed.Group("/github-repos")
		{
			repos.GET("", githubHandler.GetRepos)
			repos.GET("/search", githubHandler.Search)
			repos.GET("/:name", githubHandler.GetRepo)
		}

		strict := middleware.RateLimit(cfg.RateLimit.ContactPerMinute, cfg.RateLimit.Burst)
		timed.POST("/contact", strict, contactHandler.Submit)
		timed.POST("/admin/login", strict, adminHandler.Login)

		// 管理员路由组，需要携带 ADMIN 角色的 token
		admin := timed.Group("/admin", middleware.AdminAuthMiddleware(jwtManager))
		{
			admin.POST("/github/refresh", adminHandler.RefreshGitHub)
			admin.GET("/contacts", adminHandler.ListContacts)
			admin.GET("/conversations", adminHandler.ListConversations)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s, 已启用组件: %v", srv.Addr, components)
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

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者，再刷新生产者中缓冲的消息
	cancelRoot()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Kafka 生产者关闭失败: %v", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("服务已优雅关闭")
}
