package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"CrateFM/config"
	"CrateFM/core/library"
	"CrateFM/core/livequery"
	"CrateFM/db"
	"CrateFM/logger"
	"CrateFM/storage"
	"CrateFM/store"
)

// Start initializes dependencies and runs the HTTP server until interrupted.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// 对象存储：MySQL
	gormDB, err := db.ConnectGormDB(cfg)
	if err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	st := store.NewGormStore(gormDB)
	if err := st.Migrate(); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// 跨进程变更通知通道：Redis Pub/Sub
	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis连接失败", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	// 二进制负载存储：配置了 MinIO 用 MinIO，否则落本地目录
	var blobs storage.BlobStore
	if cfg.MinioEndpoint != "" {
		blobs, err = storage.NewMinioStore(cfg)
		if err != nil {
			logger.Fatal("MinIO初始化失败", logger.ErrorField(err))
		}
	} else {
		blobs, err = storage.NewLocalStore(cfg.BlobDir)
		if err != nil {
			logger.Fatal("本地负载目录初始化失败", logger.ErrorField(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broadcaster := livequery.NewRedisBroadcaster(redisClient, cfg.RedisChannel)
	hub := livequery.NewHub(st, broadcaster)
	if err := hub.Start(ctx); err != nil {
		logger.Fatal("变更通知订阅失败", logger.ErrorField(err))
	}
	defer hub.Close()

	fetcher := library.NewLocatorFetcher(cfg.FetchTimeout, blobs)
	manager := library.NewManager(st, hub, blobs, fetcher)

	// 包投递目录监听
	watcher, err := library.NewWatcher(manager, cfg.BundleDir)
	if err != nil {
		logger.Fatal("包投递目录监听失败", logger.ErrorField(err))
	}
	go watcher.Run(ctx)
	defer watcher.Close()

	handler := NewAPIHandler(manager)
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	handler.Register(router)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP服务已启动", logger.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", logger.ErrorField(err))
		}
	}()

	<-ctx.Done()
	logger.Info("收到退出信号，开始优雅关闭")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("优雅关闭失败", logger.ErrorField(err))
	}
}

// corsMiddleware 放行浏览器跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
