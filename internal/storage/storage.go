package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/logger"
)

var (
	// ErrCacheMiss 缓存中没有对应的键
	ErrCacheMiss = errors.New("缓存未命中")
	// ErrRecordNotFound 分析记录不存在
	ErrRecordNotFound = errors.New("分析记录不存在")
)

// Storage 存储管理器，聚合所有存储相关依赖，未启用的组件为 nil
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 按配置初始化启用的组件，任何一个启用的组件失败都会返回错误
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var initErrors []string
	var err error

	if cfg.MinIO.Enabled {
		minioLogger := log.New(io.Discard, "", 0)
		if cfg.Logger.Level == "debug" {
			minioLogger = logger.StdLogger("minio")
		}
		if s.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger); err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		}
	}

	if cfg.RabbitMQ.Enabled {
		if s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ); err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else if err = s.RabbitMQ.SetupAnalysisTopology(); err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ topology: %v", err))
		}
	}

	if cfg.MySQL.Enabled {
		if s.MySQL, err = NewMySQL(&cfg.MySQL); err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	if cfg.Redis.Enabled {
		if s.Redis, err = NewRedisAdapter(&cfg.Redis); err != nil {
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	}

	if len(initErrors) > 0 {
		s.Close()
		return nil, fmt.Errorf("存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	return s, nil
}

// AsyncReady 异步分析需要 MinIO 和 RabbitMQ 同时可用
func (s *Storage) AsyncReady() bool {
	return s != nil && s.MinIO != nil && s.RabbitMQ != nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s == nil {
		return
	}
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
}
