package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix 环境变量前缀，例如 RAIL_DATA_DIR
const EnvPrefix = "RAIL"

// 数据源类型
const (
	SourceFile = "file" // 本地文件
	SourceHTTP = "http" // HTTP 下载并缓存
	SourceIMAP = "imap" // 邮件附件
)

// Source 单个数据集的来源描述
type Source struct {
	Kind       string `json:"kind" yaml:"kind"`             // file | http | imap
	Path       string `json:"path" yaml:"path"`             // 本地路径(相对 DataDir)
	URL        string `json:"url" yaml:"url"`               // 下载地址
	Subject    string `json:"subject" yaml:"subject"`       // 邮件主题关键词
	Attachment string `json:"attachment" yaml:"attachment"` // 附件文件名
	Sheet      string `json:"sheet" yaml:"sheet"`           // xlsx 工作表名称
}

// Config 结构体定义了应用程序的运行配置
type Config struct {
	Email struct {
		Server        string   `json:"server" yaml:"server" envconfig:"SERVER"`                         // IMAP 服务器地址
		Username      string   `json:"username" yaml:"username" envconfig:"USERNAME"`                   // 邮箱用户名
		Password      string   `json:"password" yaml:"password" envconfig:"PASSWORD"`                   // 邮箱密码
		TargetSubject string   `json:"target_subject" yaml:"target_subject" envconfig:"TARGET_SUBJECT"` // 默认匹配的邮件主题
		CheckInterval Duration `json:"check_interval" yaml:"check_interval" envconfig:"CHECK_INTERVAL"` // 检查新邮件的间隔时间
	} `json:"email" yaml:"email" envconfig:"EMAIL"`

	SendEmail struct {
		Server   string   `json:"server" yaml:"server" envconfig:"SERVER"`
		Username string   `json:"username" yaml:"username" envconfig:"USERNAME"`
		Password string   `json:"password" yaml:"password" envconfig:"PASSWORD"`
		To       []string `json:"to" yaml:"to" envconfig:"TO"`
		Subject  string   `json:"subject" yaml:"subject" envconfig:"SUBJECT"`
	} `json:"send_email" yaml:"send_email" envconfig:"SEND_EMAIL"`

	Push struct {
		WebhookURL string   `json:"webhook_url" yaml:"webhook_url" envconfig:"WEBHOOK_URL"` // 钉钉群机器人地址
		Secret     string   `json:"secret" yaml:"secret" envconfig:"SECRET"`                // 加签密钥，可为空
		Timeout    Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT"`
	} `json:"push" yaml:"push" envconfig:"PUSH"`

	DataDir     string   `json:"data_dir" yaml:"data_dir" envconfig:"DATA_DIR"`             // 数据集目录
	CacheDir    string   `json:"cache_dir" yaml:"cache_dir" envconfig:"CACHE_DIR"`          // 下载缓存目录
	OutputDir   string   `json:"output_dir" yaml:"output_dir" envconfig:"OUTPUT_DIR"`       // 输出目录
	LogName     string   `json:"log_name" yaml:"log_name" envconfig:"LOG_NAME"`             // 日志文件
	LogLevel    string   `json:"log_level" yaml:"log_level" envconfig:"LOG_LEVEL"`          // debug | info | warn | error
	MetricsFile string   `json:"metrics_file" yaml:"metrics_file" envconfig:"METRICS_FILE"` // prometheus 文本导出路径
	Precision   int      `json:"precision" yaml:"precision" envconfig:"PRECISION"`          // 展示层小数位
	SkipOnError bool     `json:"skip_on_error" yaml:"skip_on_error" envconfig:"SKIP_ON_ERROR"`
	Service     string   `json:"service" yaml:"service" envconfig:"SERVICE"`    // 只加载名称包含该关键词的数据集
	Schedule    Duration `json:"schedule" yaml:"schedule" envconfig:"SCHEDULE"` // 定时运行间隔

	Datasets map[string]Source `json:"datasets" yaml:"datasets" ignored:"true"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	onceErr            error
	mu                 sync.RWMutex
)

// LoadConfig 只加载一次配置，后续调用返回同一实例
func LoadConfig(folder, file, dataFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		instance, dataConfigInstance, onceErr = Load(folder, file, dataFile)
	})
	return instance, dataConfigInstance, onceErr
}

// Load 读取运行配置与数据配置
// dataFile 为空时使用 DefaultDataConfig
func Load(folder, file, dataFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(folder, file)
	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var dataConfigData []byte
	dataConfigFile := ""
	if dataFile != "" {
		dataConfigFile = filepath.Join(folder, dataFile)
		dataConfigData, err = readFile(dataConfigFile)
		if err != nil {
			return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
		}
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configFile, configData, cfgChan, errChan)
	go parseDataConfig(dataConfigFile, dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, nil, fmt.Errorf("读取环境变量失败: %w", err)
	}
	cfg.applyDefaults()

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

// decode 根据扩展名选择 yaml 或 json
func decode(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	default:
		return json.Unmarshal(data, v)
	}
}

func parseConfig(path string, data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := decode(path, data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(path string, data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if len(data) == 0 {
		resultChan <- dcfg
		return
	}

	var parsed DataConfig
	if err := decode(path, data, &parsed); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- parsed.merge(dcfg)
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Precision <= 0 {
		c.Precision = 1
	}
	if c.Schedule == 0 {
		c.Schedule = Duration(24 * time.Hour)
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = Duration(10 * time.Second)
	}
	if c.Datasets == nil {
		c.Datasets = map[string]Source{}
	}
}

// DatasetNames 返回名称包含 service 关键词的数据集，service 为空时返回全部
func (c *Config) DatasetNames(service string) []string {
	mu.RLock()
	defer mu.RUnlock()

	var names []string
	for name := range c.Datasets {
		if service == "" || strings.Contains(name, service) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// GetSource 获取数据集来源
func (c *Config) GetSource(name string) (Source, bool) {
	mu.RLock()
	defer mu.RUnlock()
	src, ok := c.Datasets[name]
	return src, ok
}

// SetSource 注册或覆盖数据集来源
func (c *Config) SetSource(name string, src Source) {
	mu.Lock()
	defer mu.Unlock()
	if c.Datasets == nil {
		c.Datasets = map[string]Source{}
	}
	c.Datasets[name] = src
}

// Duration 是time.Duration的自定义包装类型
// 支持 JSON、YAML 与环境变量中的 "5m" 形式
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.Decode(s)
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML 实现yaml.Unmarshaler接口
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode 实现envconfig.Decoder接口
func (d *Duration) Decode(value string) error {
	if value == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
