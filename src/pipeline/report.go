package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/processor"
)

// SkippedDataset 因加载失败被跳过的数据集
type SkippedDataset struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Report 批处理汇总
type Report struct {
	StartedAt   time.Time                     `json:"started_at"`
	Duration    time.Duration                 `json:"duration"`
	Loaded      []string                      `json:"loaded"`
	Skipped     []SkippedDataset              `json:"skipped,omitempty"`
	RowsLoaded  int                           `json:"rows_loaded"`
	Columns     []processor.ColumnResult      `json:"columns"`
	Corrections map[string][]string           `json:"corrections,omitempty"` // 数据集 -> 生效规则
	Warnings    []apperrors.ValidationWarning `json:"warnings,omitempty"`
	Groups      int                           `json:"groups"`

	// 各分组准点率的平均值、按运行车次加权平均值与样本标准差
	MeanPunctuality     float64 `json:"mean_punctuality"`
	WeightedPunctuality float64 `json:"weighted_punctuality"`
	PunctualityStdDev   float64 `json:"punctuality_stddev"`
}

func (r *Report) summarize(aggs []processor.RouteAggregate) {
	rates := make([]float64, len(aggs))
	weights := make([]float64, len(aggs))
	for i, a := range aggs {
		rates[i] = a.Punctuality
		weights[i] = a.Operated
	}
	r.MeanPunctuality = processor.Mean(rates)
	r.WeightedPunctuality = processor.WeightedMean(rates, weights)
	r.PunctualityStdDev = processor.SampleStdDev(rates)
}

// MalformedLines 跳过的格式错误行数
func (r *Report) MalformedLines() int {
	for _, w := range r.Warnings {
		if w.Reason == apperrors.ReasonMalformedLine {
			return w.Count
		}
	}
	return 0
}

// CoercionFailures 各列无法转换的值的总数
func (r *Report) CoercionFailures() int {
	total := 0
	for _, c := range r.Columns {
		total += c.Failures
	}
	return total
}

// Text 适合邮件正文与终端输出的纯文本摘要
func (r *Report) Text(precision int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "批处理时间: %s (耗时 %s)\n", r.StartedAt.Format("2006-01-02 15:04:05"), r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "已加载数据集: %d，行数: %d\n", len(r.Loaded), r.RowsLoaded)
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "  跳过 %s: %s\n", s.Name, s.Error)
	}

	if len(r.Corrections) > 0 {
		names := make([]string, 0, len(r.Corrections))
		for name := range r.Corrections {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("方向修正:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  %s: %s\n", name, strings.Join(r.Corrections[name], ", "))
		}
	}

	if n := r.CoercionFailures(); n > 0 {
		fmt.Fprintf(&b, "无法转换的数值: %d\n", n)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "丢弃 %s: %d\n", w.Reason, w.Count)
	}

	fmt.Fprintf(&b, "分组数: %d\n", r.Groups)
	fmt.Fprintf(&b, "平均准点率: %.*f%% (加权 %.*f%%，标准差 %.*f)\n",
		precision, processor.Round(r.MeanPunctuality, precision),
		precision, processor.Round(r.WeightedPunctuality, precision),
		precision, processor.Round(r.PunctualityStdDev, precision))
	return b.String()
}
