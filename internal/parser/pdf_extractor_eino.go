package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// PDFTextExtractor 使用 Eino PDF Parser 把 PDF 简历转成纯文本
type PDFTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  *log.Logger
}

// PDFOption PDF提取器的配置选项
type PDFOption func(*PDFTextExtractor)

// WithPDFLogger 配置日志记录器
func WithPDFLogger(logger *log.Logger) PDFOption {
	return func(e *PDFTextExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPDFTimeout 单个文件的解析超时，默认30秒
func WithPDFTimeout(d time.Duration) PDFOption {
	return func(e *PDFTextExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewPDFTextExtractor 不按页拆分，整份 PDF 输出一段连续文本
func NewPDFTextExtractor(ctx context.Context, options ...PDFOption) (*PDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Eino PDF 解析器失败: %w", err)
	}

	extractor := &PDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// Extensions 支持的扩展名
func (e *PDFTextExtractor) Extensions() []string {
	return []string{".pdf"}
}

// ExtractText 从 PDF 字节中提取文本
func (e *PDFTextExtractor) ExtractText(ctx context.Context, name string, data []byte) (string, error) {
	text, _, err := e.ExtractTextFromReader(ctx, bytes.NewReader(data), name)
	return text, err
}

// ExtractTextFromReader 从 io.Reader 中提取文本，同时返回解析器元数据
func (e *PDFTextExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string) (string, map[string]interface{}, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	extraMeta := map[string]interface{}{
		"source_uri":      uri,
		"extraction_time": startTime.Format(time.RFC3339),
	}
	docs, err := e.parser.Parse(ctx, reader,
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(extraMeta),
	)
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("PDF解析失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", extraMeta, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", extraMeta, fmt.Errorf("eino PDF parser returned no documents for URI %s", uri)
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	fullContent := NormalizeText(strings.Join(parts, "\n\n"))

	metadata := make(map[string]interface{})
	if docs[0].MetaData != nil {
		for k, v := range docs[0].MetaData {
			metadata[k] = v
		}
	}
	for k, v := range extraMeta {
		metadata[k] = v
	}
	metadata["processing_duration_ms"] = duration.Milliseconds()
	metadata["document_count"] = len(docs)
	metadata["text_length"] = len(fullContent)

	e.logger.Printf("PDF提取完成: %d 个字符 (用时 %.2f秒)", len(fullContent), duration.Seconds())
	return fullContent, metadata, nil
}
