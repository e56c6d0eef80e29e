package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/api/handler"
	"resume-analyzer-go/internal/api/router"
	"resume-analyzer-go/internal/config"
	appCoreLogger "resume-analyzer-go/internal/logger"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/tracing"
	"resume-analyzer-go/internal/worker"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "resume-analyzer" //nolint:gochecknoglobals
)

func main() {
	var configPath, logFile string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认按 config.yaml 查找)")
	pflag.StringVar(&logFile, "log-file", "logs/app.log", "日志文件路径，留空只输出到控制台")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}

	logCloser, err := appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		FilePath:     logFile,
	})
	if err != nil {
		glog.Fatalf("初始化日志失败: %v", err)
	}
	defer logCloser.Close()
	appCoreLogger.SetupHertz()
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingName := cfg.Tracing.ServiceName
	if tracingName == "" {
		tracingName = serviceName
	}
	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		ServiceName:    tracingName,
		ServiceVersion: version,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	resumeAnalyzer, err := analyzer.NewFromConfig(ctx, cfg, storageManager)
	if err != nil {
		glog.Fatalf("初始化分析器失败: %v", err)
	}
	glog.Infof("分析器初始化成功，模型: %s, 默认模式: %s", cfg.LLM.Model, resumeAnalyzer.DefaultMode())

	var uploader handler.ObjectUploader
	var publisher handler.AnalysisPublisher
	var workersDone <-chan struct{}
	if storageManager.AsyncReady() {
		uploader = storageManager.MinIO
		publisher = storageManager.RabbitMQ

		analysisWorker := worker.NewAnalysisWorker(resumeAnalyzer, storageManager.MinIO)
		workersDone, err = analysisWorker.Start(ctx, storageManager.RabbitMQ,
			cfg.RabbitMQ.AnalysisQueue, cfg.RabbitMQ.PrefetchCount, cfg.RabbitMQ.ConsumerWorkers)
		if err != nil {
			glog.Fatalf("启动分析队列消费者失败: %v", err)
		}
	} else {
		glog.Warn("MinIO 或 RabbitMQ 未启用，异步提交接口不可用")
	}

	analysisHandler := handler.NewAnalysisHandler(resumeAnalyzer, cfg.Upload, uploader, publisher)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		server.WithMaxRequestBodySize(int(cfg.Upload.UploadMaxBytes())+1<<20),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s -> %d (%s)", string(ctx.Method()), string(ctx.Path()),
			ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, analysisHandler, cfg.Server.APIKeys)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("服务器关闭失败: %v", err)
	}

	// 停止消费者，等待正在处理的消息结束
	cancel()
	if workersDone != nil {
		select {
		case <-workersDone:
			glog.Info("分析队列消费者已停止")
		case <-shutdownCtx.Done():
			glog.Warn("等待消费者退出超时")
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		glog.Errorf("关闭链路追踪失败: %v", err)
	}
	glog.Info("优雅退出完成")
}
