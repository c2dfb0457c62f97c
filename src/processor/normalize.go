package processor

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource"
	"RailPunctuality/src/metrics"
	"RailPunctuality/src/utils"
)

// ColumnType 列的转换结果类型
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeText    ColumnType = "text"
)

// ColumnResult 单列类型转换结果，Failures 为无法转换的非空值个数
type ColumnResult struct {
	Dataset  string
	Column   string
	Type     ColumnType
	Failures int
}

// 强制转换为数值的统计列
var metricColumns = []string{
	config.ColProgrammed,
	config.ColOperated,
	config.ColCancelled,
	config.ColDelayed,
	config.ColPunctuality,
}

// 永远保持文本的列
var labelColumns = []string{
	config.ColDataset,
	config.ColDate,
	config.ColDeparture,
	config.ColArrival,
	config.ColStation,
	config.ColComment,
}

// Normalized 规范列名后的数据集
type Normalized struct {
	Name    string
	Frame   dataframe.DataFrame
	Columns []ColumnResult
	Profile config.StationProfile
}

// Normalizer 列名规范化与类型转换
type Normalizer struct {
	dcfg   *config.DataConfig
	logger *slog.Logger
}

func NewNormalizer(dcfg *config.DataConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{dcfg: dcfg, logger: logger}
}

// Normalize 返回新的 DataFrame，不修改输入
func (n *Normalizer) Normalize(ds *datasource.Dataset) *Normalized {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("normalize").Observe(time.Since(start).Seconds())
	}()

	df := n.RenameColumns(ds.Frame)
	profile, _ := n.dcfg.GetProfile(ds.Name)
	df = n.applyProfile(df, profile)

	df, results := CoerceColumns(df, ds.Name)
	for _, r := range results {
		if r.Failures > 0 {
			metrics.CoercionFailures.WithLabelValues(r.Dataset, r.Column).Add(float64(r.Failures))
			n.logger.Warn("部分值无法转换为数值",
				"dataset", r.Dataset, "column", r.Column, "failures", r.Failures)
		}
	}
	n.logger.Debug("列规范化完成", "dataset", ds.Name, "columns", df.Names())

	return &Normalized{Name: ds.Name, Frame: df, Columns: results, Profile: profile}
}

// RenameColumns 去掉列名首尾空白并映射为规范列名
// 已存在同名规范列时保留第一个匹配
func (n *Normalizer) RenameColumns(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		if t := strings.TrimSpace(name); t != name && t != "" && !utils.HasColumn(df, t) {
			df = df.Rename(t, name)
		}
	}

	seen := map[string]bool{}
	for _, name := range df.Names() {
		if c, ok := n.dcfg.Canonical(name); ok {
			seen[c] = seen[c] || c == name
		}
	}

	for _, name := range df.Names() {
		c, ok := n.dcfg.Canonical(name)
		if !ok || c == name || seen[c] {
			continue
		}
		df = df.Rename(c, name)
		seen[c] = true
	}
	return df
}

// applyProfile 补充站点属性中的城市与默认出发站
func (n *Normalizer) applyProfile(df dataframe.DataFrame, profile config.StationProfile) dataframe.DataFrame {
	if profile.Station != "" && !utils.HasColumn(df, config.ColStation) {
		df = df.Mutate(constantSeries(profile.Station, df.Nrow(), config.ColStation))
	}
	if !utils.HasColumn(df, config.ColDeparture) {
		departure := profile.Departure
		if departure == "" {
			departure = n.dcfg.DefaultDeparture
		}
		df = df.Mutate(constantSeries(departure, df.Nrow(), config.ColDeparture))
	}
	return df
}

func constantSeries(value string, n int, name string) series.Series {
	values := make([]string, n)
	for i := range values {
		values[i] = value
	}
	return series.New(values, series.String, name)
}

// CoerceColumns 尝试把每一列转换为数值
// 统计列强制转换，失败值置空；其他列只有全部非空值都能转换时才变为数值列
func CoerceColumns(df dataframe.DataFrame, dataset string) (dataframe.DataFrame, []ColumnResult) {
	var results []ColumnResult
	for _, name := range df.Names() {
		if utils.Contains(labelColumns, name) {
			continue
		}
		values := df.Col(name).Records()
		forced := utils.Contains(metricColumns, name)

		parsed, failures, nonNull := coerceValues(values, forced)
		result := ColumnResult{Dataset: dataset, Column: name, Type: TypeText}
		if forced || (nonNull > 0 && failures == 0) {
			result.Type = TypeNumeric
			result.Failures = failures
			df = df.Mutate(series.New(parsed, series.Float, name))
		}
		results = append(results, result)
	}
	return df, results
}

func coerceValues(values []string, forced bool) (parsed []float64, failures, nonNull int) {
	parse := utils.ParseNumber
	if forced {
		parse = utils.ParseMetric
	}

	parsed = make([]float64, len(values))
	for i, v := range values {
		if utils.IsNull(v) {
			parsed[i] = math.NaN()
			continue
		}
		nonNull++
		f, ok := parse(v)
		if !ok {
			failures++
			f = math.NaN()
		}
		parsed[i] = f
	}
	return parsed, failures, nonNull
}
