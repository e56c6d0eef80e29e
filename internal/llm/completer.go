package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrEmptyCompletion 模型返回了空消息
var ErrEmptyCompletion = errors.New("模型返回空消息")

// ChatCompleter 把聊天模型适配为单轮文本补全：一条用户消息进，一段文本出
type ChatCompleter struct {
	Model model.ToolCallingChatModel
	// SystemPrompt 非空时作为 system 消息放在最前面
	SystemPrompt string
}

// NewChatCompleter 创建 ChatCompleter
func NewChatCompleter(m model.ToolCallingChatModel, systemPrompt string) *ChatCompleter {
	return &ChatCompleter{Model: m, SystemPrompt: systemPrompt}
}

// Complete 发送一次请求并返回去除首尾空白的回复
func (c *ChatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if c.Model == nil {
		return "", errors.New("未配置聊天模型")
	}

	messages := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(c.SystemPrompt) != "" {
		messages = append(messages, schema.SystemMessage(c.SystemPrompt))
	}
	messages = append(messages, schema.UserMessage(prompt))

	resp, err := c.Model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("调用模型失败: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Content), nil
}
