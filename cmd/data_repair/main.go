package main

import (
	"context"
	"log"
	"os"
	"time"

	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/storage"

	"github.com/spf13/pflag"
)

func main() {
	var (
		configPath string
		logPath    string
		olderThan  time.Duration
		limit      int
		markFailed bool
		dryRun     bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.StringVar(&logPath, "log-file", "data_repair.log", "日志文件路径，留空输出到标准错误")
	pflag.DurationVar(&olderThan, "older-than", 30*time.Minute, "只处理超过该时长未更新的记录")
	pflag.IntVar(&limit, "limit", 500, "单次最多处理的记录数")
	pflag.BoolVar(&markFailed, "mark-failed", false, "不重新投递，直接标记为 FAILED")
	pflag.BoolVar(&dryRun, "dry-run", false, "只列出滞留记录")
	pflag.Parse()

	// 设置日志输出
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("创建日志文件失败: %v", err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx := context.Background()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.MySQL.Enabled {
		log.Fatalf("修复工具需要启用 MySQL")
	}
	// 对象存储和缓存用不到
	cfg.MinIO.Enabled = false
	cfg.Redis.Enabled = false
	if markFailed || dryRun {
		cfg.RabbitMQ.Enabled = false
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()

	r := &repairer{
		records:    storageManager.MySQL,
		statuses:   storageManager.MySQL,
		markFailed: markFailed,
		dryRun:     dryRun,
		logger:     log.Default(),
		now:        time.Now,
	}
	if storageManager.RabbitMQ != nil {
		r.publisher = storageManager.RabbitMQ
	}

	summary, err := r.run(ctx, olderThan, limit)
	if err != nil {
		log.Fatalf("修复失败: %v", err)
	}
	log.Printf("修复完成: 找到 %d, 重新投递 %d, 标记失败 %d, 出错 %d",
		summary.Found, summary.Republished, summary.MarkedFail, summary.Errors)
}
