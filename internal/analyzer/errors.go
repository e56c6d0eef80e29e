package analyzer

import (
	"errors"
	"fmt"

	"resume-analyzer-go/internal/parser"
)

// 定义基础错误类型
var (
	ErrEmptyText        = errors.New("简历文本为空")
	ErrUnknownMode      = errors.New("未知的提取模式")
	ErrUnsupportedFile  = parser.ErrUnsupportedFile
	ErrParseFailed      = errors.New("提取简历文本失败")
	ErrExtractFailed    = errors.New("字段提取失败")
	ErrStoreFailed      = errors.New("保存分析记录失败")
	ErrStoreDisabled    = errors.New("未启用分析记录存储")
	ErrAnalysisNotFound = errors.New("分析记录不存在")
)

// AnalysisError 包含详细错误信息的自定义错误
type AnalysisError struct {
	AnalysisID string
	Op         string
	BaseErr    error
	Err        error // 底层原因，可为 nil
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (操作:%s, ID:%s): %v", e.BaseErr, e.Op, e.AnalysisID, e.Err)
	}
	return fmt.Sprintf("%s (操作:%s, ID:%s)", e.BaseErr, e.Op, e.AnalysisID)
}

// Unwrap 同时暴露基础错误和底层原因
func (e *AnalysisError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Err}
}

func newError(id, op string, base, cause error) error {
	return &AnalysisError{AnalysisID: id, Op: op, BaseErr: base, Err: cause}
}

// IsClientError 判断错误是否由调用方输入导致
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrUnknownMode) ||
		errors.Is(err, ErrUnsupportedFile) ||
		errors.Is(err, ErrParseFailed)
}
