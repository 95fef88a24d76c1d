package ingest

import (
	"regexp"
	"sort"
)

// sectionSpan 简历中一个小节的 rune 区间 [start, end)。
type sectionSpan struct {
	label string
	start int
	end   int
}

// 常见简历小节标题。命中标题行即开启新小节，
// 直到下一个标题或文末。
var sectionPatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"skills", regexp.MustCompile(`(?im)^\s*(skills?|technical skills?|core competenc\w+)\s*:?\s*$`)},
	{"experience", regexp.MustCompile(`(?im)^\s*(experience|work history|employment|professional experience)\s*:?\s*$`)},
	{"education", regexp.MustCompile(`(?im)^\s*(education|academic\w*|qualifications?)\s*:?\s*$`)},
	{"summary", regexp.MustCompile(`(?im)^\s*(summary|objective|profile|about)\s*:?\s*$`)},
}

// detectSections 在简历全文上定位小节区间。偏移以 rune 计，
// 与分块器产出的 Chunk.Start 同一坐标系。
func detectSections(text string) []sectionSpan {
	byteToRune := buildRuneOffsets(text)

	var spans []sectionSpan
	for _, p := range sectionPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			spans = append(spans, sectionSpan{label: p.label, start: byteToRune[loc[0]]})
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	total := byteToRune[len(text)]
	for i := range spans {
		if i+1 < len(spans) {
			spans[i].end = spans[i+1].start
		} else {
			spans[i].end = total
		}
	}
	return spans
}

// sectionAt 返回覆盖给定 rune 偏移的小节标签，无命中返回空串。
func sectionAt(spans []sectionSpan, offset int) string {
	for _, s := range spans {
		if offset >= s.start && offset < s.end {
			return s.label
		}
	}
	return ""
}

// buildRuneOffsets 字节偏移到 rune 偏移的映射表，
// 支持 len(text) 处查询。
func buildRuneOffsets(text string) map[int]int {
	m := make(map[int]int, len(text)+1)
	runeIdx := 0
	for byteIdx := range text {
		m[byteIdx] = runeIdx
		runeIdx++
	}
	m[len(text)] = runeIdx
	return m
}
