package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	// DefaultAPIURL 本地 Ollama 的 OpenAI 兼容接口
	DefaultAPIURL = "http://localhost:11434/v1/chat/completions"
	// DefaultModelName 默认模型
	DefaultModelName = "phi3"
)

// --- OpenAI Compatible Structures ---

type openAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"` // Must be "function"
	Function openAIFunction `json:"function"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
	Tools       []openAITool  `json:"tools,omitempty"`
}

type responseMessage struct {
	Role      string  `json:"role"`
	Content   *string `json:"content"`
	ToolCalls []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int             `json:"index"`
		Message      responseMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
}

// ChatModel 通过 OpenAI 兼容的 /chat/completions 接口调用模型，
// 实现 model.ChatModel 和 model.ToolCallingChatModel。
type ChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
	tools       []openAITool
	logger      *log.Logger
}

// ChatModelOption ChatModel 配置项
type ChatModelOption func(*ChatModel)

// WithAPIKey 设置 Bearer 密钥，本地 Ollama 不需要
func WithAPIKey(key string) ChatModelOption {
	return func(m *ChatModel) {
		m.apiKey = strings.TrimSpace(key)
	}
}

// WithTemperature 设置采样温度
func WithTemperature(t float64) ChatModelOption {
	return func(m *ChatModel) {
		m.temperature = &t
	}
}

// WithMaxTokens 设置最大生成 token 数，<=0 时不发送
func WithMaxTokens(n int) ChatModelOption {
	return func(m *ChatModel) {
		m.maxTokens = n
	}
}

// WithTimeout 设置单次 HTTP 请求超时
func WithTimeout(d time.Duration) ChatModelOption {
	return func(m *ChatModel) {
		if d > 0 {
			m.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(c *http.Client) ChatModelOption {
	return func(m *ChatModel) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// WithChatLogger 设置日志记录器
func WithChatLogger(l *log.Logger) ChatModelOption {
	return func(m *ChatModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewChatModel 创建 ChatModel。apiURL 和 modelName 为空时使用本地 Ollama 默认值
func NewChatModel(apiURL, modelName string, opts ...ChatModelOption) *ChatModel {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = DefaultAPIURL
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModelName
	}

	m := &ChatModel{
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ModelName 返回模型名
func (m *ChatModel) ModelName() string {
	return m.modelName
}

// Generate 实现 model.ChatModel 接口
func (m *ChatModel) Generate(ctx context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	reqPayload := chatCompletionRequest{
		Model:       m.modelName,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
		Tools:       m.tools,
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		reqPayload.Messages = append(reqPayload.Messages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	m.logger.Printf("[ChatModel] 发送请求到 %s，模型 %s，消息数 %d", m.apiURL, m.modelName, len(reqPayload.Messages))

	start := time.Now()
	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	m.logger.Printf("[ChatModel] 收到响应: Status=%s, 耗时=%s", httpResp.Status, time.Since(start))

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, truncateBody(bodyBytes))
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, truncateBody(bodyBytes))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", truncateBody(bodyBytes))
	}

	apiMessage := resp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}
	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return result, nil
}

// Stream 流式输出未实现
func (m *ChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("ChatModel 不支持 Stream")
}

// BindTools 记录工具元信息。参数 schema 统一按空对象发送
func (m *ChatModel) BindTools(tools []*schema.ToolInfo) error {
	m.tools = toOpenAITools(tools)
	return nil
}

// WithTools 返回绑定了工具的副本，不修改原实例
func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	clone := *m
	clone.tools = toOpenAITools(tools)
	return &clone, nil
}

func toOpenAITools(tools []*schema.ToolInfo) []openAITool {
	out := make([]openAITool, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		out = append(out, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        info.Name,
				Description: info.Desc,
				Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			},
		})
	}
	return out
}

// truncateBody 错误信息中只保留响应体前512字节
func truncateBody(b []byte) string {
	const maxLen = 512
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

var _ model.ChatModel = (*ChatModel)(nil)
var _ model.ToolCallingChatModel = (*ChatModel)(nil)
