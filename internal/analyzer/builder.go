package analyzer

import (
	"context"
	"fmt"
	"time"

	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/llm"
	"resume-analyzer-go/internal/logger"
	"resume-analyzer-go/internal/parser"
	"resume-analyzer-go/internal/ratelimit"
	"resume-analyzer-go/internal/storage"
)

// NewCompleter 组装补全链路: ChatModel -> 限流重试 -> ChatCompleter -> (可选) Redis 缓存
func NewCompleter(cfg *config.Config, store *storage.Storage) extractor.Completer {
	timeout := config.GetDuration(cfg.LLM.Timeout, 120*time.Second)
	chatModel := llm.NewChatModel(cfg.LLM.APIURL, cfg.LLM.Model,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTimeout(timeout),
		llm.WithChatLogger(logger.StdLogger("llm")),
	)

	limited := ratelimit.NewLLMWithRateLimit(
		chatModel,
		cfg.LLM.Model,
		cfg.ModelQPMLimits,
		cfg.LLM.QPM,
		cfg.LLM.MaxRetries,
		time.Duration(cfg.LLM.RetryWaitSeconds)*time.Second,
	)

	var completer extractor.Completer = llm.NewChatCompleter(limited, cfg.LLM.SystemPrompt)
	if cfg.Extractor.CacheCompletions && store != nil && store.Redis != nil {
		completer = storage.NewCachedCompleter(completer, store.Redis, logger.StdLogger("completion-cache"))
	}
	return completer
}

// NewTextRegistry 纯文本总是可用；PDF 按配置交给 Tika 或进程内解析，后者初始化失败时只记录警告
func NewTextRegistry(ctx context.Context, cfg config.ParserConfig) *parser.Registry {
	if cfg.Backend == "tika" {
		tika := parser.NewTikaTextExtractor(cfg.TikaURL,
			parser.WithTikaTimeout(config.GetDuration(cfg.TikaTimeout, 60*time.Second)),
			parser.WithTikaLogger(logger.StdLogger("tika")),
		)
		return parser.NewRegistry(parser.PlainTextExtractor{}, tika)
	}

	pdf, err := parser.NewPDFTextExtractor(ctx, parser.WithPDFLogger(logger.StdLogger("pdf")))
	if err != nil {
		logger.Warn().Err(err).Msg("PDF提取器初始化失败，仅支持纯文本文件")
		return parser.NewRegistry(parser.PlainTextExtractor{})
	}
	return parser.NewRegistry(parser.PlainTextExtractor{}, pdf)
}

// NewFromConfig 按配置创建分析器。store 可以为 nil，此时不保存记录也不去重
func NewFromConfig(ctx context.Context, cfg *config.Config, store *storage.Storage) (*Analyzer, error) {
	defaultMode, err := ParseMode(cfg.Extractor.DefaultMode)
	if err != nil {
		return nil, fmt.Errorf("extractor.default_mode: %w", err)
	}

	fx := extractor.New(NewCompleter(cfg, store), extractor.WithLogger(logger.StdLogger("extractor")))

	opts := []Option{
		WithTextExtractor(NewTextRegistry(ctx, cfg.Parser)),
		WithDefaultMode(defaultMode),
		WithStrictStore(cfg.Extractor.StrictStore),
		WithLogger(logger.StdLogger("analyzer")),
	}
	if store != nil && store.MySQL != nil {
		opts = append(opts, WithRecordStore(store.MySQL))
	}
	if store != nil && store.Redis != nil {
		opts = append(opts, WithDedupIndex(store.Redis))
	}
	return New(fx, opts...), nil
}
