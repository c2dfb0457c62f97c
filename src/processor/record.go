package processor

import (
	"math"
	"strings"

	"github.com/go-gota/gota/dataframe"

	"RailPunctuality/src/config"
	"RailPunctuality/src/utils"
)

// Record 规范化后的一行：某站点某月的统计
// 计数与比率为 NaN 表示空值，Year/Month 为 0 表示日期无法解析
type Record struct {
	Dataset     string
	Station     string
	Departure   string
	Arrival     string
	Date        string
	Year        int
	Month       int
	Programmed  float64
	Operated    float64
	Cancelled   float64
	Delayed     float64
	Punctuality float64
}

// Valid 出发与到达都不为空且不相同
func (r Record) Valid() bool {
	return !r.missingEndpoint() && !r.selfLoop()
}

func (r Record) missingEndpoint() bool {
	return utils.IsNull(r.Departure) || utils.IsNull(r.Arrival)
}

func (r Record) selfLoop() bool {
	return strings.EqualFold(strings.TrimSpace(r.Departure), strings.TrimSpace(r.Arrival))
}

// Records 将规范化的 DataFrame 转换为记录列表
func Records(df dataframe.DataFrame) []Record {
	n := df.Nrow()
	text := func(col string) []string {
		if !utils.HasColumn(df, col) {
			return make([]string, n)
		}
		values := df.Col(col).Records()
		for i, v := range values {
			if utils.IsNull(v) {
				values[i] = ""
			}
		}
		return values
	}
	number := func(col string) []float64 {
		if !utils.HasColumn(df, col) {
			out := make([]float64, n)
			for i := range out {
				out[i] = math.NaN()
			}
			return out
		}
		return df.Col(col).Float()
	}

	var (
		datasets    = text(config.ColDataset)
		stations    = text(config.ColStation)
		departures  = text(config.ColDeparture)
		arrivals    = text(config.ColArrival)
		dates       = text(config.ColDate)
		programmed  = number(config.ColProgrammed)
		operated    = number(config.ColOperated)
		cancelled   = number(config.ColCancelled)
		delayed     = number(config.ColDelayed)
		punctuality = number(config.ColPunctuality)
	)

	records := make([]Record, n)
	for i := 0; i < n; i++ {
		r := Record{
			Dataset:     datasets[i],
			Station:     stations[i],
			Departure:   departures[i],
			Arrival:     arrivals[i],
			Date:        dates[i],
			Programmed:  programmed[i],
			Operated:    operated[i],
			Cancelled:   cancelled[i],
			Delayed:     delayed[i],
			Punctuality: punctuality[i],
		}
		if y, m, ok := utils.ParseYearMonth(r.Date); ok {
			r.Year, r.Month = y, m
		}
		records[i] = r
	}
	return records
}
