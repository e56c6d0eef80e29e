package storage

import (
	"context"
	"errors"
	"io"
	"log"

	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/pkg/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var cacheTracer = otel.Tracer("resume-analyzer-go/storage/completion-cache")

// CompletionCache 补全结果缓存，未命中返回 ErrCacheMiss
type CompletionCache interface {
	GetCompletion(ctx context.Context, promptMD5 string) (string, error)
	SetCompletion(ctx context.Context, promptMD5, completion string) error
}

var _ CompletionCache = (*Redis)(nil)

// CachedCompleter 在补全服务前加一层缓存，相同提示词只请求一次模型。
// 缓存读写失败只记日志，不影响补全结果。
type CachedCompleter struct {
	next   extractor.Completer
	cache  CompletionCache
	logger *log.Logger
}

// NewCachedCompleter cache 为 nil 时直接透传
func NewCachedCompleter(next extractor.Completer, cache CompletionCache, logger *log.Logger) *CachedCompleter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CachedCompleter{next: next, cache: cache, logger: logger}
}

// Complete 实现 extractor.Completer
func (c *CachedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cache == nil {
		return c.next.Complete(ctx, prompt)
	}

	ctx, span := cacheTracer.Start(ctx, "CachedCompleter.Complete", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	key := utils.TextMD5(prompt)
	cached, err := c.cache.GetCompletion(ctx, key)
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Printf("读取补全缓存失败 (key=%s): %v", key, err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	completion, err := c.next.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := c.cache.SetCompletion(ctx, key, completion); err != nil {
		c.logger.Printf("写入补全缓存失败 (key=%s): %v", key, err)
	}
	return completion, nil
}

var _ extractor.Completer = (*CachedCompleter)(nil)
