// Package worker 消费异步分析队列
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/logger"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("resume-analyzer-go/worker")

// OriginalFetcher 读取提交时保存的原始文件，*storage.MinIO 实现了它
type OriginalFetcher interface {
	GetOriginal(ctx context.Context, objectKey string) ([]byte, error)
}

// QueueConsumer *storage.RabbitMQ 实现了它
type QueueConsumer interface {
	StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler storage.DeliveryHandler) (<-chan struct{}, error)
}

// AnalysisWorker 处理 AnalysisRequestMessage
type AnalysisWorker struct {
	analyzer  *analyzer.Analyzer
	originals OriginalFetcher
}

// NewAnalysisWorker 创建队列处理器
func NewAnalysisWorker(a *analyzer.Analyzer, originals OriginalFetcher) *AnalysisWorker {
	return &AnalysisWorker{analyzer: a, originals: originals}
}

// Start 启动 workers 个消费者，返回的通道在全部消费者退出后关闭
func (w *AnalysisWorker) Start(ctx context.Context, consumer QueueConsumer, queueName string, prefetchCount, workers int) (<-chan struct{}, error) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		done, err := consumer.StartConsumer(ctx, queueName, prefetchCount, w.HandleMessage)
		if err != nil {
			return nil, fmt.Errorf("启动第%d个消费者失败: %w", i+1, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-done
		}()
	}

	logger.Info().
		Str("queue", queueName).
		Int("workers", workers).
		Int("prefetch_count", prefetchCount).
		Msg("分析队列消费者就绪")

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()
	return allDone, nil
}

// HandleMessage 处理一条分析请求。
// 返回包装了 storage.ErrPermanent 的错误时消息被丢弃，其他错误会重新入队一次。
func (w *AnalysisWorker) HandleMessage(ctx context.Context, body []byte) error {
	ctx, span := tracer.Start(ctx, "AnalysisWorker.HandleMessage", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var msg storage.AnalysisRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		tracing.RecordRabbitMQNack(span, "", "invalid json")
		return fmt.Errorf("%w: 解析消息失败: %v", storage.ErrPermanent, err)
	}
	if msg.AnalysisID == "" || msg.OriginalObjectKey == "" {
		tracing.RecordRabbitMQNack(span, msg.AnalysisID, "missing fields")
		return fmt.Errorf("%w: 消息缺少 analysis_id 或 original_object_key", storage.ErrPermanent)
	}

	span.SetAttributes(
		attribute.String("analysis.id", msg.AnalysisID),
		attribute.String("analysis.mode", msg.Mode),
		attribute.String("file.name", msg.OriginalFilename),
	)
	log := logger.Ctx(ctx).With().Str("analysis_id", msg.AnalysisID).Logger()

	var mode analyzer.Mode
	if msg.Mode != "" {
		m, err := analyzer.ParseMode(msg.Mode)
		if err != nil {
			return w.fail(ctx, span, msg.AnalysisID, err)
		}
		mode = m
	}

	if err := w.analyzer.MarkStatus(ctx, msg.AnalysisID, constants.StatusProcessing, nil); err != nil {
		// 提交时记录可能没有写成功，分析完成后会重新写入
		log.Warn().Err(err).Msg("更新为处理中失败")
	}

	data, err := w.originals.GetOriginal(ctx, msg.OriginalObjectKey)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return w.fail(ctx, span, msg.AnalysisID, err)
	}

	result, err := w.analyzer.AnalyzeFileRequest(ctx, analyzer.Request{
		AnalysisID:        msg.AnalysisID,
		Mode:              mode,
		Source:            constants.SourceQueue,
		OriginalFilename:  msg.OriginalFilename,
		OriginalObjectKey: msg.OriginalObjectKey,
	}, data)
	if err != nil {
		return w.fail(ctx, span, msg.AnalysisID, err)
	}

	log.Info().
		Str("status", result.Status()).
		Int64("duration_ms", result.DurationMS).
		Bool("seen_before", result.SeenBefore).
		Msg("异步分析完成")
	span.SetStatus(codes.Ok, "")
	return nil
}

// fail 把记录标记为 FAILED；输入本身有问题的错误不再重试
func (w *AnalysisWorker) fail(ctx context.Context, span trace.Span, analysisID string, cause error) error {
	if err := w.analyzer.MarkStatus(ctx, analysisID, constants.StatusFailed, cause); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("analysis_id", analysisID).Msg("更新为失败状态失败")
	}
	logger.Ctx(ctx).Error().Err(cause).Str("analysis_id", analysisID).Msg("异步分析失败")

	tracing.RecordRabbitMQNack(span, analysisID, cause.Error())
	if analyzer.IsClientError(cause) || errors.Is(cause, storage.ErrPermanent) {
		return fmt.Errorf("%w: %w", storage.ErrPermanent, cause)
	}
	return cause
}
