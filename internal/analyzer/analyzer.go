// Package analyzer 把字段提取器包装成带记录、去重和追踪的简历分析服务
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/parser"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/storage/models"
	"resume-analyzer-go/internal/tracing"
	"resume-analyzer-go/pkg/utils"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("resume-analyzer-go/analyzer")

// Mode 提取模式
type Mode string

const (
	ModeStructured Mode = "structured"
	ModeMessy      Mode = "messy"
)

// Valid 是否为已知模式
func (m Mode) Valid() bool {
	return m == ModeStructured || m == ModeMessy
}

// ParseMode 大小写不敏感，"1"/"2" 分别对应两种模式
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "1":
		return ModeStructured, nil
	case "messy", "2":
		return ModeMessy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Request 一次分析请求
type Request struct {
	Text   string
	Mode   Mode // 为空时使用默认模式
	Source string

	// 以下字段由上传和队列流程填写
	AnalysisID        string
	OriginalFilename  string
	OriginalObjectKey string
}

// Result 分析结果
type Result struct {
	ID             string             `json:"analysis_id"`
	Mode           Mode               `json:"mode"`
	Source         string             `json:"source,omitempty"`
	Fields         extractor.FieldSet `json:"fields"`
	Report         string             `json:"report"`
	Degraded       bool               `json:"degraded"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
	TextMD5        string             `json:"text_md5"`
	SeenBefore     bool               `json:"seen_before"`
	DurationMS     int64              `json:"duration_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Status 记录状态
func (r *Result) Status() string {
	if r.Degraded {
		return constants.StatusDegraded
	}
	return constants.StatusCompleted
}

// Analyzer 简历分析服务，可并发使用
type Analyzer struct {
	extractor   FieldExtractor
	files       TextExtractor
	store       RecordStore
	dedup       DedupIndex
	defaultMode Mode
	strictStore bool
	logger      *log.Logger

	now   func() time.Time
	newID func() (string, error)
}

// New 创建分析器
func New(fx FieldExtractor, opts ...Option) *Analyzer {
	a := &Analyzer{
		extractor:   fx,
		defaultMode: ModeStructured,
		logger:      log.New(io.Discard, "", 0),
		now:         time.Now,
		newID:       newAnalysisID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// newAnalysisID 使用按时间有序的 UUIDv7
func newAnalysisID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// DefaultMode 请求未指定模式时使用的模式
func (a *Analyzer) DefaultMode() Mode {
	return a.defaultMode
}

// NewAnalysisID 为异步请求预先分配ID
func (a *Analyzer) NewAnalysisID() (string, error) {
	return a.newID()
}

// Analyze 对文本执行一次字段提取。
// 提取前先用 parser.NormalizeText 统一换行、去掉行尾和全文首尾空白，规范化后为空的文本返回 ErrEmptyText。
// 非结构化模式下补全服务失败不会返回错误，而是返回 Degraded=true 的结果。
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.Analyze", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := a.now()
	text := parser.NormalizeText(req.Text)
	if text == "" {
		err := newError(req.AnalysisID, "validate", ErrEmptyText, nil)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = a.defaultMode
	}
	if !mode.Valid() {
		err := newError(req.AnalysisID, "validate", ErrUnknownMode, fmt.Errorf("mode=%q", mode))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	id := req.AnalysisID
	if id == "" {
		var err error
		if id, err = a.newID(); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
			return nil, fmt.Errorf("生成分析ID失败: %w", err)
		}
	}

	result := &Result{
		ID:        id,
		Mode:      mode,
		Source:    req.Source,
		TextMD5:   utils.TextMD5(text),
		CreatedAt: start,
	}
	span.SetAttributes(
		attribute.String("analysis.id", id),
		attribute.String("analysis.mode", string(mode)),
		attribute.String("analysis.text_md5", result.TextMD5),
		attribute.Int("analysis.text_length", len(text)),
	)

	if a.dedup != nil {
		seen, err := a.dedup.CheckAndAddTextMD5(ctx, result.TextMD5)
		if err != nil {
			a.logger.Printf("检查文本MD5失败 (ID=%s): %v", id, err)
		} else {
			result.SeenBefore = seen
		}
	}

	switch mode {
	case ModeStructured:
		result.Fields = a.extractor.ExtractStructured(text)
	case ModeMessy:
		fields, err := a.extractor.ExtractMessy(ctx, text)
		if err != nil {
			if !errors.Is(err, extractor.ErrCompletionUnavailable) {
				wrapped := newError(id, "extract", ErrExtractFailed, err)
				tracing.RecordError(span, wrapped, tracing.ErrorTypeInternal)
				a.forgetText(ctx, result)
				return nil, wrapped
			}
			result.Degraded = true
			result.DegradedReason = err.Error()
			tracing.RecordDegraded(span, err.Error())
			a.logger.Printf("补全服务不可用，返回降级结果 (ID=%s): %v", id, err)
		}
		result.Fields = fields
	}
	result.Report = result.Fields.String()
	result.DurationMS = a.now().Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.Bool("analysis.degraded", result.Degraded),
		attribute.Int("analysis.missing_fields", len(result.Fields.Missing())),
	)

	if err := a.save(ctx, req, result); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		if a.strictStore {
			return nil, err
		}
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// forgetText 提取失败时撤销本次的MD5记录，重试时不会被当成重复文本
func (a *Analyzer) forgetText(ctx context.Context, result *Result) {
	if a.dedup == nil || result.SeenBefore {
		return
	}
	if err := a.dedup.RemoveTextMD5(ctx, result.TextMD5); err != nil {
		a.logger.Printf("回滚文本MD5失败 (ID=%s): %v", result.ID, err)
	}
}

// save 把结果写入记录存储，未配置存储时什么都不做
func (a *Analyzer) save(ctx context.Context, req Request, result *Result) error {
	if a.store == nil {
		return nil
	}
	rec := &models.AnalysisRecord{
		AnalysisID:        result.ID,
		Mode:              string(result.Mode),
		Source:            result.Source,
		OriginalFilename:  req.OriginalFilename,
		OriginalObjectKey: req.OriginalObjectKey,
		TextMD5:           result.TextMD5,
		FieldsJSON:        utils.ConvertToJSON(result.Fields),
		Report:            result.Report,
		Degraded:          result.Degraded,
		DegradedReason:    result.DegradedReason,
		Status:            result.Status(),
		DurationMS:        result.DurationMS,
		ParserVersion:     constants.ParserVersion,
		CreatedAt:         result.CreatedAt,
	}
	if err := a.store.SaveAnalysisRecord(ctx, rec); err != nil {
		a.logger.Printf("保存分析记录失败 (ID=%s): %v", result.ID, err)
		return newError(result.ID, "store", ErrStoreFailed, err)
	}
	return nil
}

// AnalyzeFile 先按扩展名把文件转成文本，再执行 Analyze
func (a *Analyzer) AnalyzeFile(ctx context.Context, name string, data []byte, mode Mode) (*Result, error) {
	return a.AnalyzeFileRequest(ctx, Request{Mode: mode, Source: constants.SourceUpload, OriginalFilename: name}, data)
}

// AnalyzeFileRequest 与 AnalyzeFile 相同，但保留请求中的ID、来源和对象键
func (a *Analyzer) AnalyzeFileRequest(ctx context.Context, req Request, data []byte) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.AnalyzeFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("file.name", req.OriginalFilename),
		attribute.Int("file.size", len(data)),
	)

	if a.files == nil || !a.files.Supports(req.OriginalFilename) {
		err := newError(req.AnalysisID, "parse", ErrUnsupportedFile, fmt.Errorf("file=%q", req.OriginalFilename))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	text, err := a.files.ExtractText(ctx, req.OriginalFilename, data)
	if err != nil {
		wrapped := newError(req.AnalysisID, "parse", ErrParseFailed, err)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeParse)
		return nil, wrapped
	}

	req.Text = text
	return a.Analyze(ctx, req)
}

// SaveQueued 为异步请求写入一条 QUEUED 记录
func (a *Analyzer) SaveQueued(ctx context.Context, req Request) error {
	if a.store == nil {
		return nil
	}
	mode := req.Mode
	if mode == "" {
		mode = a.defaultMode
	}
	err := a.store.SaveAnalysisRecord(ctx, &models.AnalysisRecord{
		AnalysisID:        req.AnalysisID,
		Mode:              string(mode),
		Source:            req.Source,
		OriginalFilename:  req.OriginalFilename,
		OriginalObjectKey: req.OriginalObjectKey,
		Status:            constants.StatusQueued,
		ParserVersion:     constants.ParserVersion,
		CreatedAt:         a.now(),
	})
	if err != nil {
		return newError(req.AnalysisID, "store", ErrStoreFailed, err)
	}
	return nil
}

// MarkStatus 更新记录状态，未配置存储时什么都不做
func (a *Analyzer) MarkStatus(ctx context.Context, analysisID, status string, cause error) error {
	if a.store == nil {
		return nil
	}
	msg := ""
	if cause != nil {
		msg = tracing.TruncateString(cause.Error(), 1024)
	}
	if err := a.store.UpdateAnalysisStatus(ctx, analysisID, status, msg); err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return newError(analysisID, "update", ErrAnalysisNotFound, err)
		}
		return newError(analysisID, "update", ErrStoreFailed, err)
	}
	return nil
}

// Get 读取已保存的分析记录
func (a *Analyzer) Get(ctx context.Context, analysisID string) (*models.AnalysisRecord, error) {
	if a.store == nil {
		return nil, ErrStoreDisabled
	}
	rec, err := a.store.GetAnalysisRecord(ctx, analysisID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil, newError(analysisID, "get", ErrAnalysisNotFound, nil)
		}
		return nil, newError(analysisID, "get", ErrStoreFailed, err)
	}
	return rec, nil
}
