package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/robfig/cron"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datapush"
	"RailPunctuality/src/datasource"
	"RailPunctuality/src/datasource/email"
	"RailPunctuality/src/datasource/file"
	"RailPunctuality/src/metrics"
	"RailPunctuality/src/pipeline"
	"RailPunctuality/src/processor"
	"RailPunctuality/src/storage"
	"RailPunctuality/src/utils"
)

// 日志文件超过该大小时在批处理结束后轮转
const maxLogSize = 10 << 20

// 监控的数据文件扩展名
var watchExtensions = []string{".csv", ".txt", ".xlsx"}

type CLI struct {
	ConfigDir  string `help:"配置目录" default:"./config" type:"path"`
	ConfigFile string `help:"运行配置文件" default:"config.json"`
	DataFile   string `help:"数据配置文件" default:"dataconfig.yaml"`
	LogLevel   string `help:"覆盖配置中的日志级别(debug|info|warn|error)"`

	Run      RunCmd      `cmd:"" help:"执行一次批处理并导出结果"`
	Years    YearsCmd    `cmd:"" help:"列出城市(可选出发站)有数据的年份"`
	Stations StationsCmd `cmd:"" help:"按城市统计客流类数据集的平均值"`
	Watch    WatchCmd    `cmd:"" help:"数据目录变化或邮箱轮询时重新运行"`
	Schedule ScheduleCmd `cmd:"" help:"按固定间隔重新运行"`
}

// App 命令共享的运行环境
type App struct {
	ctx    context.Context
	cfg    *config.Config
	dcfg   *config.DataConfig
	logger *storage.Logger
	out    io.Writer
}

func (a *App) log() *slog.Logger {
	return a.logger.Slog()
}

// newPipeline 每次按需构建，refresh 时忽略下载缓存
func (a *App) newPipeline(refresh bool) *pipeline.Pipeline {
	opts := []datasource.Option{
		datasource.WithRefresh(refresh),
		datasource.WithLogger(a.log()),
	}
	if a.cfg.Email.Server != "" {
		opts = append(opts, datasource.WithMailService(
			email.NewEmailClient(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password, a.log())))
	}
	registry := datasource.NewRegistry(a.cfg, opts...)
	return pipeline.New(a.cfg, a.dcfg, registry, a.log())
}

/******************** 批处理参数 ********************/

type BatchFlags struct {
	Group       string   `help:"分组方式" enum:"route,station-year,station-year-departure,station" default:"route"`
	Service     string   `help:"数据集名称关键词，默认使用配置中的 service"`
	Dataset     []string `help:"只处理指定的数据集" name:"dataset" sep:","`
	SkipOnError bool     `help:"跳过无法加载的数据集"`
	Refresh     bool     `help:"忽略下载缓存"`
	JSON        bool     `help:"导出 JSON" name:"json"`
	CSV         bool     `help:"导出分号分隔的 CSV" name:"csv"`
	XLSX        bool     `help:"导出 XLSX" name:"xlsx"`
	Push        bool     `help:"推送摘要到 webhook 并发送邮件"`
}

func (f *BatchFlags) options(cfg *config.Config) (pipeline.Options, error) {
	group, ok := processor.ParseGroup(f.Group)
	if !ok {
		return pipeline.Options{}, fmt.Errorf("未知的分组方式: %s", f.Group)
	}
	service := f.Service
	if service == "" {
		service = cfg.Service
	}
	return pipeline.Options{
		Service:     service,
		Datasets:    f.Dataset,
		Group:       group,
		SortBy:      group,
		SkipOnError: f.SkipOnError || cfg.SkipOnError,
		Precision:   cfg.Precision,
	}, nil
}

func (f *BatchFlags) formats() []string {
	var formats []string
	if f.JSON {
		formats = append(formats, datapush.FormatJSON)
	}
	if f.CSV {
		formats = append(formats, datapush.FormatCSV)
	}
	if f.XLSX {
		formats = append(formats, datapush.FormatXLSX)
	}
	return formats
}

// execute 运行一次批处理，导出、推送并写出指标
func (a *App) execute(p *pipeline.Pipeline, f *BatchFlags) error {
	opts, err := f.options(a.cfg)
	if err != nil {
		return err
	}

	res, runErr := p.Run(a.ctx, opts)
	defer a.flushMetrics()
	if runErr != nil {
		return runErr
	}
	fmt.Fprint(a.out, res.Report.Text(a.cfg.Precision))

	formats := f.formats()
	if f.Push && !utils.Contains(formats, datapush.FormatXLSX) && len(a.cfg.SendEmail.To) > 0 {
		formats = append(formats, datapush.FormatXLSX)
	}
	written, err := datapush.Export(res, a.cfg.OutputDir, strings.ReplaceAll(f.Group, "-", "_"), formats...)
	if err != nil {
		return fmt.Errorf("导出结果失败: %w", err)
	}
	for format, path := range written {
		a.log().Info("结果已导出", "format", format, "path", path)
	}

	if f.Push {
		a.push(res, written[datapush.FormatXLSX])
	}
	return nil
}

// push 推送失败只记录日志
func (a *App) push(res *pipeline.Result, attachment string) {
	text := res.Report.Text(a.cfg.Precision)

	if a.cfg.Push.WebhookURL != "" {
		pusher := datapush.NewWebhookPusher(a.cfg.Push.WebhookURL, a.cfg.Push.Secret,
			time.Duration(a.cfg.Push.Timeout), a.log())
		if err := pusher.Push(a.ctx, text); err != nil {
			a.log().Error("推送摘要失败", "error", err)
		}
	}

	if a.cfg.SendEmail.Server != "" && len(a.cfg.SendEmail.To) > 0 {
		mailer := datapush.NewMailer(a.cfg.SendEmail.Server, a.cfg.SendEmail.Username,
			a.cfg.SendEmail.Password, a.cfg.SendEmail.To, a.log())
		if err := mailer.Send(a.cfg.SendEmail.Subject, text, attachment); err != nil {
			a.log().Error("发送邮件失败", "error", err)
		}
	}
}

func (a *App) flushMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.log().Warn("写出指标失败", "path", a.cfg.MetricsFile, "error", err)
	}
}

/******************** 命令 ********************/

type RunCmd struct {
	BatchFlags `embed:""`
}

func (c *RunCmd) Run(a *App) error {
	return a.execute(a.newPipeline(c.Refresh), &c.BatchFlags)
}

type YearsCmd struct {
	Station   string `help:"城市" required:""`
	Departure string `help:"出发站，可选"`
	Service   string `help:"数据集名称关键词，默认使用配置中的 service"`
}

func (c *YearsCmd) Run(a *App) error {
	service := c.Service
	if service == "" {
		service = a.cfg.Service
	}
	res, err := a.newPipeline(false).Run(a.ctx, pipeline.Options{
		Service:     service,
		SkipOnError: a.cfg.SkipOnError,
		Precision:   a.cfg.Precision,
	})
	if err != nil {
		return err
	}

	years := processor.AvailableYears(res.Records, c.Station, c.Departure)
	if len(years) == 0 {
		return fmt.Errorf("城市 %s 没有可用数据", c.Station)
	}
	if c.Departure == "" {
		fmt.Fprintf(a.out, "出发站: %s\n", strings.Join(processor.Departures(res.Records, c.Station), ", "))
	}
	for _, y := range years {
		fmt.Fprintln(a.out, y)
	}
	return nil
}

type StationsCmd struct {
	Dataset string `arg:"" help:"客流类数据集名称"`
}

func (c *StationsCmd) Run(a *App) error {
	means, err := a.newPipeline(false).StationSummary(a.ctx, c.Dataset)
	if err != nil {
		return err
	}
	for _, m := range means {
		parts := make([]string, 0, len(m.Means))
		for col, v := range m.Means {
			parts = append(parts, fmt.Sprintf("%s=%.*f", col, a.cfg.Precision, processor.Round(v, a.cfg.Precision)))
		}
		sort.Strings(parts)
		fmt.Fprintf(a.out, "%s\t%s\n", m.Station, strings.Join(parts, "\t"))
	}
	return nil
}

type WatchCmd struct {
	BatchFlags `embed:""`
	Debounce time.Duration `help:"文件变化合并窗口" default:"2s"`
}

func (c *WatchCmd) Run(a *App) error {
	interval := time.Duration(a.cfg.Email.CheckInterval)
	pollMail := a.cfg.Email.Server != "" && interval > 0

	p := a.newPipeline(c.Refresh || pollMail)
	rerun := func(reason string) {
		a.log().Info("重新运行批处理", "reason", reason)
		if err := a.execute(p, &c.BatchFlags); err != nil && !errors.Is(err, pipeline.ErrRunning) {
			a.log().Error("批处理失败", "error", err)
		}
		a.rotateLog()
	}
	rerun("startup")

	if pollMail {
		cr := cron.New()
		cronSpec := fmt.Sprintf("@every %s", interval)
		if err := cr.AddFunc(cronSpec, func() { rerun("mail") }); err != nil {
			return fmt.Errorf("创建邮件检查任务失败: %w", err)
		}
		cr.Start()
		defer cr.Stop()
		a.log().Info("邮箱轮询已启动", "interval", cronSpec)
	}

	monitor, err := file.NewFileMonitor(a.cfg.DataDir, watchExtensions, c.Debounce)
	if err != nil {
		return err
	}
	defer monitor.Close()

	a.log().Info("数据目录监控已启动，按Ctrl+C退出", "dir", a.cfg.DataDir)
	err = monitor.Watch(a.ctx, rerun)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type ScheduleCmd struct {
	BatchFlags `embed:""`
	Interval time.Duration `help:"运行间隔，默认使用配置中的 schedule"`
}

func (c *ScheduleCmd) Run(a *App) error {
	interval := c.Interval
	if interval <= 0 {
		interval = time.Duration(a.cfg.Schedule)
	}
	p := a.newPipeline(true)

	job := func() {
		t1 := time.Now()
		if err := a.execute(p, &c.BatchFlags); err != nil && !errors.Is(err, pipeline.ErrRunning) {
			a.log().Error("定时批处理失败", "error", err)
		}
		a.log().Info("数据处理时间", "duration", time.Since(t1))
		a.rotateLog()
	}

	cr := cron.New()
	cronSpec := fmt.Sprintf("@every %s", interval)
	if err := cr.AddFunc(cronSpec, job); err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}
	job()
	cr.Start()
	defer cr.Stop()

	a.log().Info("定时服务已启动，按Ctrl+C退出", "interval", interval.String())
	<-a.ctx.Done()
	return nil
}

func (a *App) rotateLog() {
	if err := a.logger.CheckRotate(maxLogSize); err != nil {
		a.log().Warn("日志轮转失败", "error", err)
	}
}

/******************** 入口 ********************/

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("railpunctuality"),
		kong.Description("Occitanie 区域列车准点率数据处理"),
		kong.UsageOnError(),
	)

	cfg, dcfg, err := config.LoadConfig(cli.ConfigDir, cli.ConfigFile, cli.DataFile)
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}
	level := cfg.LogLevel
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName, level)
	if err != nil {
		log.Fatal("初始化日志失败:", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go reopenOnHangup(ctx, logger, cfg.LogName)

	app := &App{ctx: ctx, cfg: cfg, dcfg: dcfg, logger: logger, out: os.Stdout}
	err = kctx.Run(app)
	if err != nil {
		logger.Slog().Error("命令执行失败", "command", kctx.Command(), "error", err)
	}
	kctx.FatalIfErrorf(err)
}

// reopenOnHangup 收到 SIGHUP 时重新打开日志文件，配合外部 logrotate
func reopenOnHangup(ctx context.Context, logger *storage.Logger, filename string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			logger.Slog().Info("收到信号，重新打开日志文件", "signal", sig.String())
			if err := logger.Reopen(filename); err != nil {
				logger.Slog().Error("重新打开日志失败", "error", err)
			}
		}
	}
}
