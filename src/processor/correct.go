package processor

import (
	"log/slog"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"RailPunctuality/src/config"
	"RailPunctuality/src/metrics"
	"RailPunctuality/src/utils"
)

// Corrector 按规则修正出发/到达方向标注错误的数据集
type Corrector struct {
	rules  []config.CorrectionRule
	logger *slog.Logger
}

func NewCorrector(rules []config.CorrectionRule, logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{rules: rules, logger: logger}
}

// Apply 原地修改 n 的 Departure/Arrival 两列，返回生效的规则名
// 触发条件不满足时静默跳过
func (c *Corrector) Apply(n *Normalized) []string {
	var applied []string
	for _, rule := range c.rules {
		if !ruleMatches(rule, n.Name) {
			continue
		}
		if !triggered(n.Frame, rule) {
			continue
		}

		switch rule.Action {
		case config.ActionSwapEndpoints:
			n.Frame = swapEndpoints(n.Frame)
		default:
			c.logger.Warn("未知的修正动作", "rule", rule.Name, "action", rule.Action)
			continue
		}

		metrics.CorrectionsApplied.WithLabelValues(n.Name, rule.Name).Inc()
		c.logger.Info("已修正出发/到达方向", "dataset", n.Name, "rule", rule.Name)
		applied = append(applied, rule.Name)
	}
	return applied
}

func ruleMatches(rule config.CorrectionRule, dataset string) bool {
	for _, key := range rule.Datasets {
		if config.MatchDataset(key, dataset) {
			return true
		}
	}
	return false
}

// triggered 触发列中任意一个值包含子串(不区分大小写)
func triggered(df dataframe.DataFrame, rule config.CorrectionRule) bool {
	if !utils.HasColumn(df, config.ColDeparture) || !utils.HasColumn(df, config.ColArrival) {
		return false
	}
	if !utils.HasColumn(df, rule.Column) || rule.Contains == "" || df.Nrow() == 0 {
		return false
	}

	hits := df.Filter(dataframe.F{
		Colname:    rule.Column,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool {
			return !el.IsNA() && utils.ContainsFold(el.String(), rule.Contains)
		},
	})
	return hits.Err == nil && hits.Nrow() > 0
}

func swapEndpoints(df dataframe.DataFrame) dataframe.DataFrame {
	departures := df.Col(config.ColDeparture).Records()
	arrivals := df.Col(config.ColArrival).Records()
	return df.Mutate(series.New(arrivals, series.String, config.ColDeparture)).
		Mutate(series.New(departures, series.String, config.ColArrival))
}
