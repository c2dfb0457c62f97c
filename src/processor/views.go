package processor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/utils"
)

/******************** 记录视图 ********************/

// Stations 去重排序后的城市列表
func Stations(records []Record) []string {
	return distinct(records, func(r Record) (string, bool) {
		return r.Station, r.Station != ""
	})
}

// Departures 某城市的出发站列表
func Departures(records []Record, station string) []string {
	return distinct(records, func(r Record) (string, bool) {
		return r.Departure, r.Departure != "" && strings.EqualFold(r.Station, station)
	})
}

func distinct(records []Record, pick func(Record) (string, bool)) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		v, ok := pick(r)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// AvailableYears 某城市(可选出发站)有数据的年份，降序
func AvailableYears(records []Record, station, departure string) []int {
	seen := map[int]bool{}
	var years []int
	for _, r := range records {
		if !matchSelection(r, station, departure) || r.Year == 0 || seen[r.Year] {
			continue
		}
		seen[r.Year] = true
		years = append(years, r.Year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// MonthlySeries 某城市某出发站某年的月度记录，按日期排序
func MonthlySeries(records []Record, station, departure string, year int) []Record {
	var out []Record
	for _, r := range records {
		if matchSelection(r, station, departure) && r.Year == year {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].Date < out[j].Date
	})
	return out
}

func matchSelection(r Record, station, departure string) bool {
	if !strings.EqualFold(r.Station, station) {
		return false
	}
	return departure == "" || strings.EqualFold(r.Departure, departure)
}

/******************** 城市均值 ********************/

// StationMean 单个城市各统计列的平均值
type StationMean struct {
	Station string
	Means   map[string]float64
}

// LocateStationColumn 按关键字查找城市列
func LocateStationColumn(df dataframe.DataFrame, keywords []string, dataset string) (string, error) {
	for _, name := range df.Names() {
		for _, kw := range keywords {
			if utils.ContainsFold(name, kw) {
				return name, nil
			}
		}
	}
	return "", &apperrors.SchemaError{Dataset: dataset, Missing: keywords}
}

// SelectMetricColumns 选出未被屏蔽且总和为正的数值列
func SelectMetricColumns(df dataframe.DataFrame, blacklist []string, exclude ...string) []string {
	var cols []string
	for _, name := range df.Names() {
		if utils.Contains(exclude, name) || blacklisted(name, blacklist) {
			continue
		}
		col := df.Col(name)
		if col.Type() != series.Float && col.Type() != series.Int {
			continue
		}
		if nanSum(col.Float()) > 0 {
			cols = append(cols, name)
		}
	}
	return cols
}

func blacklisted(name string, blacklist []string) bool {
	for _, b := range blacklist {
		if utils.ContainsFold(name, b) {
			return true
		}
	}
	return false
}

// StationMeans 按城市分组求 columns 的平均值，城市名统一大写，结果按城市排序
func StationMeans(df dataframe.DataFrame, stationColumn string, columns []string) ([]StationMean, error) {
	if !utils.HasColumn(df, stationColumn) {
		return nil, fmt.Errorf("城市列 %s 不存在", stationColumn)
	}

	names := df.Col(stationColumn).Records()
	for i, n := range names {
		names[i] = strings.ToUpper(strings.TrimSpace(n))
	}
	df = df.Mutate(series.New(names, series.String, stationColumn))
	df = df.Filter(dataframe.F{
		Colname:    stationColumn,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !utils.IsNull(el.String())
		},
	})
	if df.Err != nil {
		return nil, fmt.Errorf("过滤城市列失败: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return nil, nil
	}

	groups := df.GroupBy(stationColumn)
	if groups.Err != nil {
		return nil, fmt.Errorf("按城市分组失败: %w", groups.Err)
	}

	var out []StationMean
	for _, g := range groups.GetGroups() {
		m := StationMean{
			Station: g.Col(stationColumn).Records()[0],
			Means:   make(map[string]float64, len(columns)),
		}
		for _, c := range columns {
			if !utils.HasColumn(g, c) {
				continue
			}
			if v := nanMean(g.Col(c).Float()); !math.IsNaN(v) {
				m.Means[c] = v
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out, nil
}
