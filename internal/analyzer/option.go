package analyzer

import "log"

// Option 分析器选项
type Option func(*Analyzer)

// WithTextExtractor 设置上传文件的文本提取器
func WithTextExtractor(files TextExtractor) Option {
	return func(a *Analyzer) {
		a.files = files
	}
}

// WithRecordStore 设置分析记录存储
func WithRecordStore(store RecordStore) Option {
	return func(a *Analyzer) {
		a.store = store
	}
}

// WithDedupIndex 设置文本去重索引
func WithDedupIndex(dedup DedupIndex) Option {
	return func(a *Analyzer) {
		a.dedup = dedup
	}
}

// WithDefaultMode 请求未指定模式时使用
func WithDefaultMode(mode Mode) Option {
	return func(a *Analyzer) {
		if mode.Valid() {
			a.defaultMode = mode
		}
	}
}

// WithStrictStore 为 true 时存储失败会让分析返回错误
func WithStrictStore(strict bool) Option {
	return func(a *Analyzer) {
		a.strictStore = strict
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}
