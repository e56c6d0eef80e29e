package extractor

import (
	"regexp"
	"sort"
	"strconv"
)

// 年份区间，如 "2018-2020"、"2019 – 2022"
var yearRangePattern = regexp.MustCompile(`\b(19\d{2}|20\d{2})\s*[–-]\s*(19\d{2}|20\d{2})\b`)

// YearRange 一段起止年份
type YearRange struct {
	Start int
	End   int
}

// ExtractYearRanges 按出现顺序返回文本中所有年份区间
func ExtractYearRanges(text string) []YearRange {
	matches := yearRangePattern.FindAllStringSubmatch(text, -1)
	ranges := make([]YearRange, 0, len(matches))
	for _, m := range matches {
		start, err1 := strconv.Atoi(m[1])
		end, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		ranges = append(ranges, YearRange{Start: start, End: end})
	}
	return ranges
}

// MergeYearRanges 排序后合并重叠或首尾相接的区间，不修改入参
func MergeYearRanges(ranges []YearRange) []YearRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]YearRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []YearRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// TotalYears 累加每段 max(0, End-Start)
func TotalYears(ranges []YearRange) int {
	total := 0
	for _, r := range ranges {
		if d := r.End - r.Start; d > 0 {
			total += d
		}
	}
	return total
}

// experienceFromRanges 从年份区间推算总年限，没有区间时返回空字符串
func experienceFromRanges(text string) string {
	ranges := ExtractYearRanges(text)
	if len(ranges) == 0 {
		return ""
	}
	return formatExperience(strconv.Itoa(TotalYears(MergeYearRanges(ranges))), "0")
}
