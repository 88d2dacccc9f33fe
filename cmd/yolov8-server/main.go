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

	yolov8 "github.com/getcharzp/go-yolov8"
	"github.com/getcharzp/go-yolov8/internal/cache"
	"github.com/getcharzp/go-yolov8/internal/config"
	"github.com/getcharzp/go-yolov8/internal/logger"
	"github.com/getcharzp/go-yolov8/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

type resultCache interface {
	server.ResultCache
	Close() error
}

func main() {
	fs := pflag.NewFlagSet("yolov8-server", pflag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "YAML 配置文件")
	fs.String("model", "", "ONNX 模型路径")
	fs.String("lib", "", "SDK 动态库路径")
	fs.String("labels", "", "类别名称文件")
	fs.String("port", "", "监听地址，例如 :8080")
	fs.String("mode", "", "运行模式 debug/release")
	fs.Int("pool-size", 0, "引擎数量")
	fs.String("redis", "", "Redis 地址")
	_ = fs.Parse(os.Args[1:])

	// 加载配置
	cfg := config.New(*configPath, fs)

	// 初始化日志
	if err := logger.Init(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.L.Info("starting yolov8 server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	engineCfg, err := cfg.Detector.EngineConfig()
	if err != nil {
		logger.L.Fatal("invalid detector config", zap.Error(err))
	}
	engineCfg.Logger = logger.L.Named("engine")

	labels, err := cfg.Detector.Labels()
	if err != nil {
		logger.L.Fatal("failed to load labels", zap.Error(err))
	}

	pool, err := yolov8.NewPool(engineCfg, cfg.Server.PoolSize)
	if err != nil {
		logger.L.Fatal("failed to create engine pool", zap.Error(err))
	}
	defer pool.Close()
	logger.L.Info("engine pool ready",
		zap.Int("size", pool.Size()),
		zap.String("model", engineCfg.ModelPath))

	// 初始化Redis，连接失败时不使用缓存
	var results resultCache = cache.NopCache{}
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(&cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisCache.Ping(ctx)
		cancel()
		if err != nil {
			logger.L.Warn("redis connection failed, cache disabled", zap.Error(err))
			_ = redisCache.Close()
		} else {
			logger.L.Info("redis connected successfully", zap.String("addr", cfg.Redis.Addr))
			results = redisCache
		}
	}
	defer results.Close()

	gin.SetMode(cfg.Server.Mode)
	handler := server.NewHandler(pool, results, server.Options{
		MaxUploadSize:  cfg.Server.MaxUploadSize,
		AcquireTimeout: cfg.Server.AcquireTimeout,
		Fingerprint:    cache.Fingerprint(engineCfg),
		Labels:         labels,
		Build: server.BuildInfo{
			Version:   Version,
			BuildTime: BuildTime,
			GitCommit: GitCommit,
			GitBranch: GitBranch,
		},
	}, logger.L)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.L.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("server shutdown failed", zap.Error(err))
	}
}
