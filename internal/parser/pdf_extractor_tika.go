package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// tikaContentTypes Tika 能处理的简历格式
var tikaContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
}

// TikaTextExtractor 通过 Apache Tika 服务器 (PUT /tika) 提取文本，支持 PDF 和 Word
type TikaTextExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 是否提取链接注释文本
	extractAnnotations bool
	logger             *log.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaTextExtractor)

// WithAnnotations 配置是否提取PDF注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaTextExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 设置日志记录器
func WithTikaLogger(logger *log.Logger) TikaOption {
	return func(e *TikaTextExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTikaTimeout 设置请求超时
func WithTikaTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaTextExtractor) {
		if timeout > 0 {
			e.Client.Timeout = timeout
		}
	}
}

// NewTikaTextExtractor 创建一个新的Tika解析器
func NewTikaTextExtractor(serverURL string, options ...TikaOption) *TikaTextExtractor {
	e := &TikaTextExtractor{
		ServerURL:          strings.TrimRight(serverURL, "/"),
		Client:             &http.Client{Timeout: 60 * time.Second},
		extractAnnotations: true,
		logger:             log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Extensions 支持的扩展名
func (e *TikaTextExtractor) Extensions() []string {
	exts := make([]string, 0, len(tikaContentTypes))
	for ext := range tikaContentTypes {
		exts = append(exts, ext)
	}
	return exts
}

// ExtractText 把文件内容 PUT 给 Tika，取回纯文本
func (e *TikaTextExtractor) ExtractText(ctx context.Context, name string, data []byte) (string, error) {
	startTime := time.Now()
	ext := strings.ToLower(filepath.Ext(name))
	contentType, ok := tikaContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")
	if name != "" {
		req.Header.Set("X-Tika-Resource-Name", filepath.Base(name))
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}

	text := NormalizeText(string(textBytes))
	e.logger.Printf("Tika提取完成: %s, %d 个字符 (用时 %.2f秒)", name, len(text), time.Since(startTime).Seconds())
	return text, nil
}
