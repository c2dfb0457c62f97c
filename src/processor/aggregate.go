package processor

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/metrics"
)

// GroupKey 聚合维度
type GroupKey string

const (
	KeyDataset   GroupKey = "Dataset"
	KeyStation   GroupKey = "Station"
	KeyDeparture GroupKey = "Departure"
	KeyArrival   GroupKey = "Arrival"
	KeyDate      GroupKey = "Date"
	KeyYear      GroupKey = "Year"
	KeyMonth     GroupKey = "Month"
)

/******************** 常用分组 ********************/

var (
	GroupRoute                = []GroupKey{KeyDeparture, KeyArrival}
	GroupStationYear          = []GroupKey{KeyStation, KeyYear}
	GroupStationYearDeparture = []GroupKey{KeyStation, KeyYear, KeyDeparture}
	GroupStation              = []GroupKey{KeyStation}
)

// ParseGroup 命令行分组名转换为聚合维度
func ParseGroup(name string) ([]GroupKey, bool) {
	switch strings.ToLower(name) {
	case "", "route":
		return GroupRoute, true
	case "station-year":
		return GroupStationYear, true
	case "station-year-departure":
		return GroupStationYearDeparture, true
	case "station":
		return GroupStation, true
	}
	return nil, false
}

// value 取记录在某个维度上的值，空串表示缺失
func (r Record) value(key GroupKey) string {
	switch key {
	case KeyDataset:
		return strings.TrimSpace(r.Dataset)
	case KeyStation:
		return strings.TrimSpace(r.Station)
	case KeyDeparture:
		return strings.TrimSpace(r.Departure)
	case KeyArrival:
		return strings.TrimSpace(r.Arrival)
	case KeyDate:
		return strings.TrimSpace(r.Date)
	case KeyYear:
		if r.Year == 0 {
			return ""
		}
		return strconv.Itoa(r.Year)
	case KeyMonth:
		if r.Month == 0 {
			return ""
		}
		return strconv.Itoa(r.Month)
	}
	return ""
}

// RouteAggregate 一个分组的汇总结果，数值保持全精度
type RouteAggregate struct {
	Keys        []GroupKey
	Values      []string
	Programmed  float64
	Operated    float64
	Cancelled   float64
	Delayed     float64
	Punctuality float64
	Rows        int
}

func (a RouteAggregate) DelayRate() float64 {
	return DelayRate(a.Delayed, a.Operated)
}

func (a RouteAggregate) CancellationRate() float64 {
	return CancellationRate(a.Cancelled, a.Programmed)
}

// Value 返回某个维度的取值
func (a RouteAggregate) Value(key GroupKey) string {
	for i, k := range a.Keys {
		if k == key {
			return a.Values[i]
		}
	}
	return ""
}

// Record 输出用记录，只在这里做四舍五入
func (a RouteAggregate) Record(precision int) map[string]any {
	out := make(map[string]any, len(a.Keys)+8)
	for i, k := range a.Keys {
		switch k {
		case KeyYear, KeyMonth:
			n, _ := strconv.Atoi(a.Values[i])
			out[string(k)] = n
		default:
			out[string(k)] = a.Values[i]
		}
	}
	out["Programmed"] = a.Programmed
	out["Operated"] = a.Operated
	out["Cancelled"] = a.Cancelled
	out["Delayed"] = a.Delayed
	out["PunctualityRate"] = Round(a.Punctuality, precision)
	out["DelayRate"] = Round(a.DelayRate(), precision)
	out["CancellationRate"] = Round(a.CancellationRate(), precision)
	out["Rows"] = a.Rows
	return out
}

// Options 聚合选项
type Options struct {
	// SortBy 为空时按分组首次出现的顺序输出
	SortBy []GroupKey
	// SkipRateFilter 保留准点率为空或超出 [0,100] 的分组
	SkipRateFilter bool
}

type group struct {
	values      []string
	programmed  []float64
	operated    []float64
	cancelled   []float64
	delayed     []float64
	punctuality []float64
}

// Aggregate 过滤无效行后按 keys 分组汇总
// 返回各原因的丢弃计数
func Aggregate(records []Record, keys []GroupKey, opts Options) ([]RouteAggregate, map[apperrors.Reason]int) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	}()

	drops := map[apperrors.Reason]int{}
	index := map[string]*group{}
	var order []string

	for _, r := range records {
		if r.missingEndpoint() {
			drops[apperrors.ReasonMissingEndpoint]++
			continue
		}
		if r.selfLoop() {
			drops[apperrors.ReasonSelfLoop]++
			continue
		}

		values := make([]string, len(keys))
		missing := false
		for i, k := range keys {
			values[i] = r.value(k)
			if values[i] == "" {
				missing = true
			}
		}
		if missing {
			drops[apperrors.ReasonMissingKey]++
			continue
		}

		id := strings.Join(values, "\x00")
		g, ok := index[id]
		if !ok {
			g = &group{values: values}
			index[id] = g
			order = append(order, id)
		}
		g.programmed = append(g.programmed, r.Programmed)
		g.operated = append(g.operated, r.Operated)
		g.cancelled = append(g.cancelled, r.Cancelled)
		g.delayed = append(g.delayed, r.Delayed)
		g.punctuality = append(g.punctuality, r.Punctuality)
	}

	out := make([]RouteAggregate, 0, len(order))
	for _, id := range order {
		g := index[id]
		agg := RouteAggregate{
			Keys:        keys,
			Values:      g.values,
			Programmed:  nanSum(g.programmed),
			Operated:    nanSum(g.operated),
			Cancelled:   nanSum(g.cancelled),
			Delayed:     nanSum(g.delayed),
			Punctuality: nanMean(g.punctuality),
			Rows:        len(g.programmed),
		}
		if !opts.SkipRateFilter && !rateInRange(agg.Punctuality) {
			drops[apperrors.ReasonRateOutOfRange]++
			continue
		}
		out = append(out, agg)
	}

	if len(opts.SortBy) > 0 {
		SortAggregates(out, opts.SortBy)
	}

	for reason, count := range drops {
		metrics.RowsDropped.WithLabelValues(string(reason)).Add(float64(count))
	}
	return out, drops
}

func rateInRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// SortAggregates 按给定维度稳定排序，年份和月份按数值比较
func SortAggregates(aggs []RouteAggregate, by []GroupKey) {
	sort.SliceStable(aggs, func(i, j int) bool {
		for _, k := range by {
			a, b := aggs[i].Value(k), aggs[j].Value(k)
			if a == b {
				continue
			}
			if k == KeyYear || k == KeyMonth {
				x, _ := strconv.Atoi(a)
				y, _ := strconv.Atoi(b)
				return x < y
			}
			return a < b
		}
		return false
	})
}
