package datasource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource/email"
	apperrors "RailPunctuality/src/errors"
)

const DefaultHTTPTimeout = 30 * time.Second

// Resolver 将数据集逻辑名称解析为本地文件路径
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Registry 基于配置中数据集表的解析器
// file 直接返回本地路径，http 下载到缓存目录，imap 保存最新邮件附件
type Registry struct {
	cfg     *config.Config
	client  *http.Client
	mail    email.MailService
	saver   *email.AttachmentSaver
	refresh bool
	logger  *slog.Logger
}

type Option func(*Registry)

// WithHTTPClient 替换下载使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) { r.client = c }
}

// WithMailService 设置 imap 数据源使用的邮件服务
func WithMailService(m email.MailService) Option {
	return func(r *Registry) { r.mail = m }
}

// WithRefresh 忽略下载缓存
func WithRefresh(refresh bool) Option {
	return func(r *Registry) { r.refresh = refresh }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func NewRegistry(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:    cfg,
		client: &http.Client{Timeout: DefaultHTTPTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.saver = email.NewAttachmentSaver(cfg.CacheDir, r.logger)
	return r
}

// Sheet 返回数据集配置的 xlsx 工作表名称
func (r *Registry) Sheet(name string) string {
	src, _ := r.cfg.GetSource(name)
	return src.Sheet
}

func (r *Registry) Resolve(ctx context.Context, name string) (string, error) {
	src, ok := r.cfg.GetSource(name)
	if !ok {
		return "", &apperrors.NotFoundError{Name: name}
	}

	switch src.Kind {
	case "", config.SourceFile:
		return r.resolveFile(name, src)
	case config.SourceHTTP:
		return r.download(ctx, name, src)
	case config.SourceIMAP:
		return r.fetchAttachment(name, src)
	default:
		return "", fmt.Errorf("数据集 %s 的来源类型 %q 不受支持", name, src.Kind)
	}
}

func (r *Registry) resolveFile(name string, src config.Source) (string, error) {
	p := src.Path
	if p == "" {
		p = name + ".csv"
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.cfg.DataDir, p)
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("数据文件不可用: %w", err)
	}
	return p, nil
}

func (r *Registry) cachePath(name, rawURL string) string {
	ext := ".csv"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e == ".xlsx" || e == ".txt" {
			ext = e
		}
	}
	return filepath.Join(r.cfg.CacheDir, name+ext)
}

// download 下载并缓存，缓存存在时直接返回，失败不重试
func (r *Registry) download(ctx context.Context, name string, src config.Source) (string, error) {
	if src.URL == "" {
		return "", fmt.Errorf("数据集 %s 未配置下载地址", name)
	}
	target := r.cachePath(name, src.URL)
	if !r.refresh {
		if info, err := os.Stat(target); err == nil && info.Size() > 0 {
			return target, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载失败: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(r.cfg.CacheDir, 0755); err != nil {
		return "", fmt.Errorf("创建缓存目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(r.cfg.CacheDir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("写入缓存失败: %w", err)
	}

	r.logger.Info("数据集已下载", "dataset", name, "bytes", n, "path", target)
	return target, nil
}

func (r *Registry) fetchAttachment(name string, src config.Source) (string, error) {
	if r.mail == nil {
		return "", fmt.Errorf("数据集 %s 需要邮件服务，但未配置", name)
	}
	subject := src.Subject
	if subject == "" {
		subject = r.cfg.Email.TargetSubject
	}

	target, err := email.FetchLatest(r.mail, subject, email.RecentMailDuration, r.logger)
	if err != nil {
		return "", err
	}
	if target == nil {
		return "", fmt.Errorf("没有主题包含 %q 的邮件", subject)
	}
	return r.saver.Save(target, src.Attachment, name)
}
