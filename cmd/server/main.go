package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"student-roster/config"
	"student-roster/internal/api/handler"
	"student-roster/internal/api/router"
	"student-roster/internal/changefeed"
	"student-roster/internal/repository"
	"student-roster/internal/service"
	"student-roster/pkg/credential"
	"student-roster/pkg/database"
	"student-roster/pkg/jwt"
	applogger "student-roster/pkg/logger"
	"student-roster/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.Driver, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，登录限流与跨实例推送将不可用", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 变更推送
	runCtx, stopRun := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	hub := changefeed.NewHub(cfg.Feed.BufferSize, logger)
	var (
		publisher  changefeed.Publisher
		subscriber changefeed.Subscriber
	)
	if cfg.Feed.Enabled {
		subscriber = hub
		publisher = hub

		switch {
		case cfg.Feed.Source == config.FeedSourcePostgres:
			// 由数据库触发器产生事件，应用层不再重复发布
			publisher = nil
			listener := changefeed.NewPGListener(cfg.Database.DSN(), hub, logger)
			runWorker(runCtx, &workers, logger, "pg-listener", listener.Run)
		case cfg.Feed.Broker == config.FeedBrokerRedis && rdb != nil:
			// 订阅建立前或 Run 退出后，broker 自行改为本地投递
			broker := changefeed.NewRedisBroker(rdb, cfg.Feed.Channel, hub, logger)
			publisher = broker
			runWorker(runCtx, &workers, logger, "redis-broker", broker.Run)
		case cfg.Feed.Broker == config.FeedBrokerRedis:
			logger.Warn("Redis 不可用，变更推送降级为单实例")
		}
		logger.Info("变更推送已启用",
			zap.String("source", cfg.Feed.Source),
			zap.String("broker", cfg.Feed.Broker),
		)
	}

	// 6. 初始化认证
	verifier := credential.NewStaticVerifier(cfg.Auth.Users)
	if verifier.Len() == 0 {
		logger.Warn("未配置管理员账号，登录接口不可用")
	}
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, publisher, verifier, jwtMgr, logger)
	h := handler.NewHandler(svc, subscriber, cfg.Feed.Heartbeat, cfg.Auth.RequireToken, logger)

	// 8. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 先结束推送长连接，否则 Shutdown 会一直等待
	stopRun()
	hub.Close()
	workers.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 关闭数据库连接
	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// runWorker 在后台运行 fn，异常退出时记录日志
func runWorker(ctx context.Context, wg *sync.WaitGroup, logger *zap.Logger, name string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(ctx); err != nil {
			logger.Error("后台任务退出", zap.String("worker", name), zap.Error(err))
		}
	}()
}
