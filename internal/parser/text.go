package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFile 不支持的文件类型
var ErrUnsupportedFile = errors.New("不支持的文件类型")

// TextExtractor 把某类文件内容转成简历纯文本
type TextExtractor interface {
	Extensions() []string
	ExtractText(ctx context.Context, name string, data []byte) (string, error)
}

// PlainTextExtractor 处理 .txt / .md，只做编码校验和换行归一
type PlainTextExtractor struct{}

// Extensions 支持的扩展名
func (PlainTextExtractor) Extensions() []string {
	return []string{".txt", ".md"}
}

// ExtractText 要求内容是合法 UTF-8
func (PlainTextExtractor) ExtractText(_ context.Context, name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("文件 %s 不是有效的 UTF-8 文本", name)
	}
	return NormalizeText(strings.TrimPrefix(string(data), "\ufeff")), nil
}

// Registry 按扩展名分发到具体的提取器
type Registry struct {
	byExt map[string]TextExtractor
}

// NewRegistry 后注册的提取器覆盖先注册的同名扩展
func NewRegistry(extractors ...TextExtractor) *Registry {
	r := &Registry{byExt: make(map[string]TextExtractor)}
	for _, e := range extractors {
		if e == nil {
			continue
		}
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// Supports 判断文件名的扩展名是否有对应提取器
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ExtractText 根据文件名扩展名选择提取器
func (r *Registry) ExtractText(ctx context.Context, name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
	return e.ExtractText(ctx, name, data)
}

// NormalizeText 统一换行符并去掉行尾空白，保留行结构
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
