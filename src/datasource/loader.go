package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource/file"
	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/metrics"
)

// Dataset 单个数据集加载结果，每行带有 Dataset 列
type Dataset struct {
	Name      string
	Path      string
	Frame     dataframe.DataFrame
	Separator rune
	Encoding  string
	Malformed int
}

// sheetSource 可选接口：为 xlsx 数据集提供工作表名称
type sheetSource interface {
	Sheet(name string) string
}

// Loader 按逻辑名称加载数据集
type Loader struct {
	resolver Resolver
	dcfg     *config.DataConfig
	logger   *slog.Logger
}

func NewLoader(resolver Resolver, dcfg *config.DataConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{resolver: resolver, dcfg: dcfg, logger: logger}
}

// Load 解析、读取并校验数据集
// 无法定位或解析时返回 DatasetError，缺少必需列时返回 SchemaError
func (l *Loader) Load(ctx context.Context, name string) (*Dataset, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	path, err := l.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, apperrors.NewDatasetError(name, err)
	}

	sheet := ""
	if s, ok := l.resolver.(sheetSource); ok {
		sheet = s.Sheet(name)
	}
	table, err := file.ReadFile(path, sheet)
	if err != nil {
		return nil, apperrors.NewDatasetError(name, err)
	}

	frame := table.ToDataFrame()
	if frame.Err != nil {
		return nil, apperrors.NewDatasetError(name, fmt.Errorf("构建 DataFrame 失败: %w", frame.Err))
	}

	if missing := l.dcfg.MissingRequired(frame.Names()); len(missing) > 0 {
		return nil, &apperrors.SchemaError{Dataset: name, Missing: missing}
	}

	tags := make([]string, frame.Nrow())
	for i := range tags {
		tags[i] = name
	}
	frame = frame.Mutate(series.New(tags, series.String, config.ColDataset))

	metrics.RowsLoaded.WithLabelValues(name).Add(float64(frame.Nrow()))
	if table.Malformed > 0 {
		metrics.RowsDropped.WithLabelValues(string(apperrors.ReasonMalformedLine)).Add(float64(table.Malformed))
		l.logger.Warn("跳过格式错误的行", "dataset", name, "lines", table.Malformed)
	}
	l.logger.Info("数据集加载完成",
		"dataset", name,
		"rows", frame.Nrow(),
		"columns", frame.Ncol(),
		"separator", string(table.Separator),
		"encoding", table.Encoding)

	return &Dataset{
		Name:      name,
		Path:      path,
		Frame:     frame,
		Separator: table.Separator,
		Encoding:  table.Encoding,
		Malformed: table.Malformed,
	}, nil
}

// LoadAll 依次加载多个数据集
// skipOnError 时跳过 DatasetError 并返回被跳过的错误，SchemaError 始终中止
func (l *Loader) LoadAll(ctx context.Context, names []string, skipOnError bool) ([]*Dataset, []error, error) {
	var (
		datasets []*Dataset
		skipped  []error
	)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		ds, err := l.Load(ctx, name)
		if err == nil {
			datasets = append(datasets, ds)
			continue
		}

		var de *apperrors.DatasetError
		if skipOnError && errors.As(err, &de) {
			metrics.DatasetErrors.WithLabelValues(name).Inc()
			l.logger.Warn("跳过无法加载的数据集", "dataset", name, "error", err)
			skipped = append(skipped, err)
			continue
		}
		metrics.DatasetErrors.WithLabelValues(name).Inc()
		return nil, skipped, err
	}
	return datasets, skipped, nil
}
