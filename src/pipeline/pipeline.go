package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource"
	"RailPunctuality/src/datasource/file"
	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/metrics"
	"RailPunctuality/src/processor"
)

// ErrRunning 上一次批处理尚未结束
var ErrRunning = errors.New("批处理正在运行")

// Options 单次运行参数
type Options struct {
	Service     string               // 数据集名称关键词，为空时加载全部
	Datasets    []string             // 显式指定数据集，优先于 Service
	Group       []processor.GroupKey // 为空时按线路分组
	SortBy      []processor.GroupKey
	SkipOnError bool
	Precision   int
}

// Result 一次批处理的完整输出
type Result struct {
	Group      []processor.GroupKey
	Precision  int
	Records    []processor.Record
	Aggregates []processor.RouteAggregate
	Report     Report
}

// Rows 输出用记录，数值按 Precision 四舍五入
func (r *Result) Rows() []map[string]any {
	rows := make([]map[string]any, len(r.Aggregates))
	for i, a := range r.Aggregates {
		rows[i] = a.Record(r.Precision)
	}
	return rows
}

// Columns 输出列顺序：分组键在前，统计列在后
func (r *Result) Columns() []string {
	cols := make([]string, 0, len(r.Group)+8)
	for _, k := range r.Group {
		cols = append(cols, string(k))
	}
	return append(cols,
		"Programmed", "Operated", "Cancelled", "Delayed",
		"PunctualityRate", "DelayRate", "CancellationRate", "Rows")
}

// Pipeline 加载、规范化、修正、聚合
type Pipeline struct {
	cfg        *config.Config
	dcfg       *config.DataConfig
	resolver   datasource.Resolver
	loader     *datasource.Loader
	normalizer *processor.Normalizer
	corrector  *processor.Corrector
	store      *ResultStore
	logger     *slog.Logger
	running    sync.Mutex
}

func New(cfg *config.Config, dcfg *config.DataConfig, resolver datasource.Resolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		dcfg:       dcfg,
		resolver:   resolver,
		loader:     datasource.NewLoader(resolver, dcfg, logger),
		normalizer: processor.NewNormalizer(dcfg, logger),
		corrector:  processor.NewCorrector(dcfg.Corrections, logger),
		store:      &ResultStore{},
		logger:     logger,
	}
}

// Latest 最近一次成功运行的结果
func (p *Pipeline) Latest() *Result {
	return p.store.Get()
}

// Run 执行一次完整批处理，同一时刻只允许一个运行
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if !p.running.TryLock() {
		return nil, ErrRunning
	}
	defer p.running.Unlock()

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("pipeline").Observe(time.Since(start).Seconds())
	}()

	names := opts.Datasets
	if len(names) == 0 {
		names = p.cfg.DatasetNames(opts.Service)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("没有匹配的数据集(service=%q)", opts.Service)
	}
	group := opts.Group
	if len(group) == 0 {
		group = processor.GroupRoute
	}

	p.logger.Info("开始批处理", "datasets", len(names), "group", group)

	datasets, skipped, err := p.loader.LoadAll(ctx, names, opts.SkipOnError)
	if err != nil {
		return nil, fmt.Errorf("加载数据集失败: %w", err)
	}

	report := Report{StartedAt: start, Corrections: map[string][]string{}}
	for _, e := range skipped {
		var de *apperrors.DatasetError
		if errors.As(e, &de) {
			report.Skipped = append(report.Skipped, SkippedDataset{Name: de.Dataset, Error: de.Err.Error()})
		}
	}

	drops := map[apperrors.Reason]int{}
	var records []processor.Record
	for _, ds := range datasets {
		report.Loaded = append(report.Loaded, ds.Name)
		report.RowsLoaded += ds.Frame.Nrow()
		drops[apperrors.ReasonMalformedLine] += ds.Malformed

		n := p.normalizer.Normalize(ds)
		report.Columns = append(report.Columns, n.Columns...)

		if applied := p.corrector.Apply(n); len(applied) > 0 {
			report.Corrections[ds.Name] = applied
		}

		rs := processor.Records(n.Frame)
		if n.Profile.Collapse {
			before := len(rs)
			rs = processor.CollapseMonthly(rs)
			p.logger.Debug("合并同月记录", "dataset", ds.Name, "before", before, "after", len(rs))
		}
		records = append(records, rs...)
	}

	aggs, aggDrops := processor.Aggregate(records, group, processor.Options{SortBy: opts.SortBy})
	for reason, count := range aggDrops {
		drops[reason] += count
	}

	report.Warnings = apperrors.Warnings(drops)
	report.Groups = len(aggs)
	report.summarize(aggs)
	report.Duration = time.Since(start)

	for _, w := range report.Warnings {
		p.logger.Warn("数据校验", "reason", w.Reason, "count", w.Count)
	}
	p.logger.Info("批处理完成",
		"loaded", len(report.Loaded),
		"skipped", len(report.Skipped),
		"rows", report.RowsLoaded,
		"groups", report.Groups,
		"duration", report.Duration)

	result := &Result{
		Group:      group,
		Precision:  opts.Precision,
		Records:    records,
		Aggregates: aggs,
		Report:     report,
	}
	p.store.Set(result)
	return result, nil
}

// StationSummary 读取客流类数据集，按城市求各统计列的平均值
// 不检查必需列
func (p *Pipeline) StationSummary(ctx context.Context, name string) ([]processor.StationMean, error) {
	path, err := p.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, apperrors.NewDatasetError(name, err)
	}
	sheet := ""
	if r, ok := p.resolver.(interface{ Sheet(string) string }); ok {
		sheet = r.Sheet(name)
	}
	table, err := file.ReadFile(path, sheet)
	if err != nil {
		return nil, apperrors.NewDatasetError(name, err)
	}

	df, _ := processor.CoerceColumns(table.ToDataFrame(), name)
	col, err := processor.LocateStationColumn(df, p.dcfg.StationKeywords, name)
	if err != nil {
		return nil, err
	}
	cols := processor.SelectMetricColumns(df, p.dcfg.Blacklist, col)
	p.logger.Info("城市均值", "dataset", name, "station_column", col, "columns", cols)
	return processor.StationMeans(df, col, cols)
}
