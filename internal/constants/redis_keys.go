package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ExtractModulePrefix 字段提取模块
	ExtractModulePrefix = "extract"

	// EntityCompletion 补全结果实体
	EntityCompletion = "completion"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"

	// KeyCompletionCache 补全结果缓存 (STRING)
	// 格式: app:extract:completion:{promptMD5}
	KeyCompletionCache = AppPrefix + ":" + ExtractModulePrefix + ":" + EntityCompletion + ":%s"

	// KeyAnalyzedTextMD5Set 已分析文本的MD5集合 (SET)
	// 格式: app:extract:dedup_set
	KeyAnalyzedTextMD5Set = AppPrefix + ":" + ExtractModulePrefix + ":" + EntityDedupSet
)
