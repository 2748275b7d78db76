package results

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/acolita/train-wizard/internal/session"
)

// matchTimeout bounds a single anchor search.
const matchTimeout = time.Second

// AnchorSet names the sections of a transcript and the patterns that start
// them. Titles[i] labels the section found by Patterns[i].
type AnchorSet struct {
	Titles   []string
	Patterns []string
}

// Len returns the number of anchors.
func (a AnchorSet) Len() int {
	return len(a.Patterns)
}

// Title returns the title for section i, or "" when out of range.
func (a AnchorSet) Title(i int) string {
	if i < 0 || i >= len(a.Titles) {
		return ""
	}
	return a.Titles[i]
}

var classificationTitles = []string{
	"评估指标", "混淆矩阵分析", "保存结果", "可视化图表", "详细分类报告",
	"主要特点", "时间性能", "最终性能", "输出文件",
}

var anchorSets = map[session.TaskType]AnchorSet{
	session.TaskBinaryClassification: {
		Titles: classificationTitles,
		Patterns: []string{
			"评估指标", "混淆矩阵分析", "保存结果", "生成可视化图表", "详细分类报告",
			"信用卡违约预测总结", "时间性能:", "最终性能:", "输出文件:",
		},
	},
	session.TaskMultiClass: {
		Titles: classificationTitles,
		Patterns: []string{
			"评估指标", "混淆矩阵分析", "保存结果", "生成可视化图表", "详细分类报告",
			"多分类任务总结", "时间性能:", "最终性能:", "输出文件:",
		},
	},
	session.TaskRegression: {
		Titles: []string{
			"评估指标", "预测值分析", "相对误差分析", "保存结果", "可视化图表",
			"主要改进", "时间性能", "最终性能", "输出文件",
		},
		Patterns: []string{
			"评估指标", "预测值分析", "相对误差分析", "保存结果", "生成可视化图表",
			"SGemm回归预测总结", "时间性能:", "最终性能:", "输出文件:",
		},
	},
}

// AnchorsFor returns the anchor set of a task type. Unset yields an empty set.
func AnchorsFor(t session.TaskType) AnchorSet {
	set, ok := anchorSets[t]
	if !ok {
		return AnchorSet{}
	}
	return AnchorSet{
		Titles:   append([]string(nil), set.Titles...),
		Patterns: append([]string(nil), set.Patterns...),
	}
}

// Sections maps an anchor index to its trimmed text. Index 0 holds the
// whole transcript.
type Sections map[int]string

// Indexes returns the present section indexes in ascending order.
func (s Sections) Indexes() []int {
	idx := make([]int, 0, len(s))
	for i := range s {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// SplitSections cuts text at the first match of each pattern. Section 0 is
// the whole text, untouched. Section i >= 1 runs from the match of pattern i
// to the first later pattern whose match starts after it, or to the end of
// the text.
// Patterns are multiline; ones that do not match, or do not compile, produce
// no section.
func SplitSections(text string, patterns []string) Sections {
	out := Sections{}
	if strings.TrimSpace(text) == "" {
		return out
	}
	out[0] = text

	// regexp2 reports match positions in runes
	runes := []rune(text)
	starts := make([]int, len(patterns))
	for i, p := range patterns {
		starts[i] = firstMatch(p, text)
	}

	for i := 1; i < len(patterns); i++ {
		start := starts[i]
		if start < 0 {
			continue
		}
		end := len(runes)
		for j := i + 1; j < len(patterns); j++ {
			if starts[j] > start {
				end = starts[j]
				break
			}
		}
		out[i] = strings.TrimSpace(string(runes[start:end]))
	}
	return out
}

// firstMatch returns the rune offset of the first match of pattern, or -1.
func firstMatch(pattern, text string) int {
	re, err := regexp2.Compile(pattern, regexp2.Multiline)
	if err != nil {
		slog.Debug("skipping invalid anchor", slog.String("pattern", pattern), slog.String("error", err.Error()))
		return -1
	}
	re.MatchTimeout = matchTimeout
	m, err := re.FindStringMatch(text)
	if err != nil || m == nil {
		return -1
	}
	return m.Index
}
