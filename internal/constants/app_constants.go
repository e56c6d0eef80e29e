package constants

import "time"

const (
	// ParserVersion 写入分析记录，规则或提示词变化时递增
	ParserVersion = "extractor-1.0"

	// DefaultCompletionCacheTTL 未配置时补全缓存的过期时间
	DefaultCompletionCacheTTL = 7 * 24 * time.Hour
	// DefaultMD5RecordTTL 未配置时文本MD5集合的过期时间
	DefaultMD5RecordTTL = 30 * 24 * time.Hour
)

// 分析记录状态
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusDegraded   = "COMPLETED_DEGRADED"
	StatusFailed     = "FAILED"
)

// 分析来源
const (
	SourceText   = "text"
	SourceUpload = "upload"
	SourceQueue  = "queue"
	SourceCLI    = "cli"
)
