package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("resume-analyzer-go/storage/redis")

// checkAndAddScript 原子地检查并加入集合，返回加入前是否已存在
const checkAndAddScript = `
	local exists = redis.call('SISMEMBER', KEYS[1], ARGV[1])
	redis.call('SADD', KEYS[1], ARGV[1])
	if redis.call('TTL', KEYS[1]) < 0 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return exists
`

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,

		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute,
	})

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// CompletionTTL 补全缓存过期时间
func (r *Redis) CompletionTTL() time.Duration {
	if r.config == nil || r.config.CompletionCacheTTLHours <= 0 {
		return constants.DefaultCompletionCacheTTL
	}
	return time.Duration(r.config.CompletionCacheTTLHours) * time.Hour
}

// MD5ExpireDuration 返回配置的MD5记录过期时间
func (r *Redis) MD5ExpireDuration() time.Duration {
	if r.config == nil || r.config.MD5RecordExpireDays <= 0 {
		return constants.DefaultMD5RecordTTL
	}
	return time.Duration(r.config.MD5RecordExpireDays) * 24 * time.Hour
}

// CompletionKey 按提示词MD5生成缓存键
func CompletionKey(promptMD5 string) string {
	return fmt.Sprintf(constants.KeyCompletionCache, promptMD5)
}

// GetCompletion 读取缓存的补全结果，未命中时返回 ErrCacheMiss
func (r *Redis) GetCompletion(ctx context.Context, promptMD5 string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	val, err := r.Client.Get(ctx, CompletionKey(promptMD5)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetCompletion 写入补全结果
func (r *Redis) SetCompletion(ctx context.Context, promptMD5, completion string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Set(ctx, CompletionKey(promptMD5), completion, r.CompletionTTL()).Err()
}

// CheckAndAddTextMD5 检查并添加简历文本MD5到集合，是一个原子操作
func (r *Redis) CheckAndAddTextMD5(ctx context.Context, md5Hex string) (exists bool, err error) {
	ctx, span := redisTracer.Start(ctx, "Redis.CheckAndAddTextMD5",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := constants.KeyAnalyzedTextMD5Set
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "EVAL"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		attribute.String("db.redis.member", md5Hex),
	)

	if r.Client == nil {
		err = fmt.Errorf("redis client is not initialized")
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, err
	}

	res, err := r.Client.Eval(ctx, checkAndAddScript, []string{key}, md5Hex, int64(r.MD5ExpireDuration().Seconds())).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, fmt.Errorf("执行原子检查和添加操作失败: %w", err)
	}

	// Lua脚本返回0表示不存在，1表示存在
	existsVal, ok := res.(int64)
	if !ok {
		err = fmt.Errorf("意外的Redis返回类型: %T", res)
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, err
	}

	exists = existsVal == 1
	span.SetAttributes(attribute.Bool("already_exists", exists))
	span.SetStatus(codes.Ok, "")
	return exists, nil
}

// RemoveTextMD5 分析失败时回滚MD5记录，避免重试被判重
func (r *Redis) RemoveTextMD5(ctx context.Context, md5Hex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SRem(ctx, constants.KeyAnalyzedTextMD5Set, md5Hex).Err()
}
