package extractor

import (
	"errors"
	"fmt"
)

// ErrCompletionUnavailable 文本补全服务不可用
var ErrCompletionUnavailable = errors.New("文本补全服务不可用")

// CompletionError 包装补全调用失败的原因
type CompletionError struct {
	Op      string
	BaseErr error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s (操作:%s): %v", ErrCompletionUnavailable, e.Op, e.BaseErr)
}

func (e *CompletionError) Unwrap() error {
	return e.BaseErr
}

// Is 使 errors.Is(err, ErrCompletionUnavailable) 成立
func (e *CompletionError) Is(target error) bool {
	return target == ErrCompletionUnavailable
}
