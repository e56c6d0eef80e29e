package extractor

import (
	"strings"
)

// NotMentioned 字段缺失时使用的固定占位值，永远不会输出空字符串
const NotMentioned = "Not mentioned"

// 输出标签，顺序即最终报告中的行顺序
const (
	LabelName        = "Name"
	LabelContact     = "Contact"
	LabelLocation    = "Current location"
	LabelExperience  = "Years of Experience"
	LabelSkills      = "Skills"
	LabelDegree      = "Degree"
	LabelPassoutYear = "Passout year"
	LabelCollege     = "College name"
)

// Labels 按固定顺序返回全部8个标签
func Labels() []string {
	return []string{
		LabelName,
		LabelContact,
		LabelLocation,
		LabelExperience,
		LabelSkills,
		LabelDegree,
		LabelPassoutYear,
		LabelCollege,
	}
}

// FieldSet 一次提取得到的8个字段，每个字段要么是去除首尾空白的非空值，要么是 NotMentioned
type FieldSet struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Location    string `json:"current_location"`
	Experience  string `json:"years_of_experience"`
	Skills      string `json:"skills"`
	Degree      string `json:"degree"`
	PassoutYear string `json:"passout_year"`
	College     string `json:"college_name"`
}

// Field 单个标签/值对
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// newFieldSet 构造 FieldSet，并把所有空值统一成 NotMentioned
func newFieldSet(name, contact, location, experience, skills, degree, passout, college string) FieldSet {
	return FieldSet{
		Name:        orNotMentioned(name),
		Contact:     orNotMentioned(contact),
		Location:    orNotMentioned(location),
		Experience:  orNotMentioned(experience),
		Skills:      orNotMentioned(skills),
		Degree:      orNotMentioned(degree),
		PassoutYear: orNotMentioned(passout),
		College:     orNotMentioned(college),
	}
}

// Fields 按输出顺序返回标签/值对
func (f FieldSet) Fields() []Field {
	return []Field{
		{Label: LabelName, Value: f.Name},
		{Label: LabelContact, Value: f.Contact},
		{Label: LabelLocation, Value: f.Location},
		{Label: LabelExperience, Value: f.Experience},
		{Label: LabelSkills, Value: f.Skills},
		{Label: LabelDegree, Value: f.Degree},
		{Label: LabelPassoutYear, Value: f.PassoutYear},
		{Label: LabelCollege, Value: f.College},
	}
}

// Get 按标签取值，标签不存在时返回 false
func (f FieldSet) Get(label string) (string, bool) {
	for _, field := range f.Fields() {
		if field.Label == label {
			return field.Value, true
		}
	}
	return "", false
}

// Missing 返回值为 NotMentioned 的标签
func (f FieldSet) Missing() []string {
	var missing []string
	for _, field := range f.Fields() {
		if field.Value == NotMentioned {
			missing = append(missing, field.Label)
		}
	}
	return missing
}

// String 生成8行 "Label: value" 文本，每行以换行结尾
func (f FieldSet) String() string {
	var sb strings.Builder
	for _, field := range f.Fields() {
		sb.WriteString(field.Label)
		sb.WriteString(": ")
		sb.WriteString(field.Value)
		sb.WriteString("\n")
	}
	return sb.String()
}

// orNotMentioned 空白值或大小写不同的占位值都归一为 NotMentioned
func orNotMentioned(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NotMentioned) {
		return NotMentioned
	}
	return s
}
