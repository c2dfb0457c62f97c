package processor

import (
	"strings"
)

// CollapseMonthly 按 (Dataset, Date, Departure) 合并同月多行
// 计数求和，准点率取平均，到达站与城市保留第一行的值
func CollapseMonthly(records []Record) []Record {
	type bucket struct {
		first       Record
		programmed  []float64
		operated    []float64
		cancelled   []float64
		delayed     []float64
		punctuality []float64
	}

	index := map[string]*bucket{}
	var order []string
	for _, r := range records {
		id := strings.Join([]string{r.Dataset, r.Date, r.Departure}, "\x00")
		b, ok := index[id]
		if !ok {
			b = &bucket{first: r}
			index[id] = b
			order = append(order, id)
		}
		b.programmed = append(b.programmed, r.Programmed)
		b.operated = append(b.operated, r.Operated)
		b.cancelled = append(b.cancelled, r.Cancelled)
		b.delayed = append(b.delayed, r.Delayed)
		b.punctuality = append(b.punctuality, r.Punctuality)
	}

	out := make([]Record, 0, len(order))
	for _, id := range order {
		b := index[id]
		r := b.first
		r.Programmed = nanSum(b.programmed)
		r.Operated = nanSum(b.operated)
		r.Cancelled = nanSum(b.cancelled)
		r.Delayed = nanSum(b.delayed)
		r.Punctuality = nanMean(b.punctuality)
		out = append(out, r)
	}
	return out
}
