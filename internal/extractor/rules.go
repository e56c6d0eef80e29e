package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// 印度手机号：可选 +91 前缀，6-9 开头的10位数字。前面不能紧挨数字，避免截取11位号码的后10位
	mobilePattern = regexp.MustCompile(`(?:^|\D)(?:\+91[\s-]*)?([6-9]\d{9})\b`)

	// 带电话标签的行，例如 "Contact-..."、"Mobile: ..."
	phoneLabelPattern = regexp.MustCompile(`(?i)(?:phone|mobile|contact)\s*[-:]`)

	// 技能行，"Skill:" 与 "Skills -" 都算
	skillsLinePattern = regexp.MustCompile(`(?im)^Skills?\s*[-:]\s*(.+)$`)

	// "10 years 3 months"
	yearsMonthsPattern = regexp.MustCompile(`(?i)(\d+)\s*years?\s*(\d+)\s*months?`)
)

// fieldKeys 每个结构化字段可接受的键名，按优先级排列
var fieldKeys = struct {
	Name        []string
	Location    []string
	Degree      []string
	PassoutYear []string
	College     []string
}{
	Name:        []string{"Name"},
	Location:    []string{"Current location", "Location"},
	Degree:      []string{"Degree"},
	PassoutYear: []string{"Passout year", "Passout"},
	College:     []string{"College name", "Colege name", "College"},
}

// keyPatternCache 键名到已编译正则的映射，在包初始化时构建，之后只读
var keyPatternCache = buildKeyPatterns(
	fieldKeys.Name,
	fieldKeys.Location,
	fieldKeys.Degree,
	fieldKeys.PassoutYear,
	fieldKeys.College,
)

func buildKeyPatterns(groups ...[]string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp)
	for _, keys := range groups {
		for _, k := range keys {
			patterns[k] = keyLinePattern(k)
		}
	}
	return patterns
}

// keyLinePattern 匹配 "Key: value" 或 "Key - value"，键名锚定在行首。
// 分隔符后的空白可以跨行，"Name:\nRam Kumar" 取下一行作为值
func keyLinePattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(key) + `\s*[-:]\s*(.+)$`)
}

// cleanValue 去掉首尾空白以及残留的 '-' 和 ':'
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "-")
	s = strings.Trim(s, ":")
	return strings.TrimSpace(s)
}

// firstMatch 返回第一个匹配的捕获组（已清洗），没有匹配时返回空字符串
func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return cleanValue(m[1])
}

// allMatches 返回全部匹配的捕获组（已清洗）
func allMatches(re *regexp.Regexp, text string) []string {
	found := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(found))
	for _, m := range found {
		if len(m) < 2 {
			continue
		}
		out = append(out, cleanValue(m[1]))
	}
	return out
}

// extractField 依次尝试每个键名，返回第一个非空值
func extractField(text string, keys []string) string {
	for _, k := range keys {
		re, ok := keyPatternCache[k]
		if !ok {
			re = keyLinePattern(k)
		}
		if v := firstMatch(re, text); v != "" {
			return v
		}
	}
	return ""
}

// ContactFinding 联系方式检查结果
type ContactFinding struct {
	// Mobile 合法的10位手机号，未找到时为空
	Mobile string
	// LabelledButInvalid 存在电话标签行，但没有任何合法号码
	LabelledButInvalid bool
}

// FindContact 在全文中查找合法手机号；找不到时记录是否存在带标签但格式错误的电话行
func FindContact(text string) ContactFinding {
	if m := mobilePattern.FindStringSubmatch(text); len(m) > 1 {
		return ContactFinding{Mobile: m[1]}
	}
	return ContactFinding{LabelledButInvalid: phoneLabelPattern.MatchString(text)}
}

// mergeSkills 按逗号拆分、去空白、忽略大小写去重，保留首次出现的顺序与写法
func mergeSkills(lines []string) string {
	seen := make(map[string]struct{})
	var merged []string
	for _, line := range lines {
		for _, part := range strings.Split(line, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			key := strings.ToLower(p)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, p)
		}
	}
	return strings.Join(merged, ", ")
}

// extractSkills 合并所有技能行
func extractSkills(text string) string {
	lines := allMatches(skillsLinePattern, text)
	if len(lines) == 0 {
		return ""
	}
	return mergeSkills(lines)
}

// extractExperienceYearsMonths 解析 "N years M months"，取整年数直接丢弃月份
func extractExperienceYearsMonths(text string) string {
	m := yearsMonthsPattern.FindStringSubmatch(text)
	if len(m) < 3 {
		return ""
	}
	return formatExperience(trimLeadingZeros(m[1]), trimLeadingZeros(m[2]))
}

// trimLeadingZeros "007" -> "7"，全零时保留一个 "0"。数字按原样输出，不经过 int 以免溢出
func trimLeadingZeros(digits string) string {
	if t := strings.TrimLeft(digits, "0"); t != "" {
		return t
	}
	return "0"
}

func formatExperience(years, months string) string {
	return fmt.Sprintf("%s years %s months (rounded down: %s years)", years, months, years)
}
