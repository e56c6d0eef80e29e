package extractor

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"
	"strings"
)

// Completer 文本补全能力，输入完整提示词，返回模型生成的文本
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc 允许普通函数作为 Completer 使用
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete 调用函数本身
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var errNoCompleter = errors.New("未配置文本补全服务")

// 模型回复中需要逐行识别的6个标签
const (
	replyName     = "Name:"
	replyLocation = "Current location:"
	replySkills   = "Skills:"
	replyDegree   = "Degree:"
	replyPassout  = "Passout year:"
	replyCollege  = "College name:"
)

var replyPatterns = map[string]*regexp.Regexp{
	replyName:     replyLinePattern(replyName),
	replyLocation: replyLinePattern(replyLocation),
	replySkills:   replyLinePattern(replySkills),
	replyDegree:   replyLinePattern(replyDegree),
	replyPassout:  replyLinePattern(replyPassout),
	replyCollege:  replyLinePattern(replyCollege),
}

func replyLinePattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(label) + `\s*(.+)$`)
}

const messyPromptTemplate = `You extract resume fields from messy text.

STRICT RULES:
- Do NOT invent phone numbers, emails, dates, years, or numbers.
- Copy any names/skills/degree/college words exactly if present.
- If a field is missing, output: Not mentioned
- Output must be EXACTLY 6 lines, in this exact format:
Name: ...
Current location: ...
Skills: ...
Degree: ...
Passout year: ...
College name: ...

TEXT:
`

// MessyPrompt 生成非结构化模式下发送给模型的提示词
func MessyPrompt(text string) string {
	return strings.TrimSpace(messyPromptTemplate + text)
}

// Extractor 简历字段提取器，不持有可变状态，可并发使用
type Extractor struct {
	completer Completer
	logger    *log.Logger
}

// Option 提取器配置项
type Option func(*Extractor)

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New 创建提取器。completer 可以为 nil，此时只能使用结构化模式，非结构化模式会返回降级结果
func New(completer Completer, opts ...Option) *Extractor {
	e := &Extractor{
		completer: completer,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractStructured 从 "Key: value" / "Key - value" 形式的文本中提取字段
func (e *Extractor) ExtractStructured(text string) FieldSet {
	contact := FindContact(text)
	if contact.LabelledButInvalid {
		e.logger.Printf("发现电话标签但号码格式不合法，联系方式记为 %q", NotMentioned)
	}
	return newFieldSet(
		extractField(text, fieldKeys.Name),
		contact.Mobile,
		extractField(text, fieldKeys.Location),
		extractExperienceYearsMonths(text),
		extractSkills(text),
		extractField(text, fieldKeys.Degree),
		extractField(text, fieldKeys.PassoutYear),
		extractField(text, fieldKeys.College),
	)
}

// ExtractStructured 使用不带补全服务的提取器执行结构化提取
func ExtractStructured(text string) FieldSet {
	return New(nil).ExtractStructured(text)
}

// ExtractMessy 对自由文本做正则+模型混合提取。
// 联系方式和工作年限只由正则得到，其余6个字段来自一次补全调用。
// 补全失败时返回保留正则字段的降级结果，同时返回 *CompletionError。
func (e *Extractor) ExtractMessy(ctx context.Context, text string) (FieldSet, error) {
	contact := FindContact(text).Mobile
	experience := experienceFromRanges(text)

	if e.completer == nil {
		return newFieldSet("", contact, "", experience, "", "", "", ""),
			&CompletionError{Op: "complete", BaseErr: errNoCompleter}
	}

	reply, err := e.completer.Complete(ctx, MessyPrompt(text))
	if err != nil {
		e.logger.Printf("补全调用失败，模型字段降级为 %q: %v", NotMentioned, err)
		return newFieldSet("", contact, "", experience, "", "", "", ""),
			&CompletionError{Op: "complete", BaseErr: err}
	}

	reply = strings.TrimSpace(reply)
	return newFieldSet(
		pickReply(reply, replyName),
		contact,
		pickReply(reply, replyLocation),
		experience,
		normalizeReplySkills(pickReply(reply, replySkills)),
		pickReply(reply, replyDegree),
		pickReply(reply, replyPassout),
		pickReply(reply, replyCollege),
	), nil
}

// pickReply 取出回复中某个标签行的值，缺失时返回 NotMentioned
func pickReply(reply, label string) string {
	if v := firstMatch(replyPatterns[label], reply); v != "" {
		return v
	}
	return NotMentioned
}

func normalizeReplySkills(skills string) string {
	if strings.EqualFold(strings.TrimSpace(skills), NotMentioned) {
		return NotMentioned
	}
	if merged := mergeSkills([]string{skills}); merged != "" {
		return merged
	}
	return NotMentioned
}
