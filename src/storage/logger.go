package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ParseLevel 解析日志级别字符串
// 支持 debug, info, warn/warning, error，其余按 info 处理
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger 日志记录器：同时写入日志文件、标准输出和订阅者
type Logger struct {
	filename    string        // 当前日志文件路径
	file        *os.File      // 日志文件句柄
	console     io.Writer     // 控制台输出，nil 表示不输出
	mu          sync.Mutex    // 互斥锁，保证并发安全
	subscribers []chan string // 订阅者通道列表
	level       *slog.LevelVar
	slog        *slog.Logger
}

// NewLogger 创建新的日志记录器
// 参数:
//
//	filename: 日志文件路径
//	level: 日志级别字符串
func NewLogger(filename, level string) (*Logger, error) {
	file, err := openLogFile(filename)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		filename: filename,
		file:     file,
		console:  os.Stdout,
		level:    new(slog.LevelVar),
	}
	l.level.Set(ParseLevel(level))
	l.slog = slog.New(slog.NewJSONHandler(l, &slog.HandlerOptions{Level: l.level}))
	return l, nil
}

func openLogFile(filename string) (*os.File, error) {
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败 %s: %w", filename, err)
	}
	return file, nil
}

// Slog 返回结构化日志接口，供各组件注入
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetLevel 运行时调整日志级别
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// SetConsole 替换控制台输出，nil 关闭控制台输出
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = w
}

// Write 实现io.Writer，slog handler 的每条记录都经过这里
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, fmt.Errorf("日志文件已关闭")
	}
	n, err := l.file.Write(p)
	if err != nil {
		return n, err
	}
	if l.console != nil {
		_, _ = l.console.Write(p)
	}

	// 通知所有订阅者
	entry := strings.TrimRight(string(p), "\n")
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default: // 如果通道已满则跳过
		}
	}
	return n, nil
}

// Close 关闭日志文件与订阅通道
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subscribers {
		close(ch)
	}
	l.subscribers = nil

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Reopen 重新打开日志文件，配合外部 logrotate 的 SIGHUP 使用
func (l *Logger) Reopen(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
	}

	file, err := openLogFile(filename)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	l.filename = filename
	return nil
}

// CheckRotate 日志文件超过 maxSize 字节时归档并新建
func (l *Logger) CheckRotate(maxSize int64) error {
	if maxSize <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}
	return l.rotateLog()
}

// rotateLog 调用方需持有锁
func (l *Logger) rotateLog() error {
	_ = l.file.Close()

	ext := ".log"
	base := strings.TrimSuffix(l.filename, ext)
	archived := fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405"), ext)
	if err := os.Rename(l.filename, archived); err != nil {
		return fmt.Errorf("归档日志失败: %w", err)
	}

	file, err := openLogFile(l.filename)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	return nil
}

// Subscribe 订阅日志消息
// 返回只读通道(容量100)，Close 时关闭
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan string, 100)
	l.subscribers = append(l.subscribers, ch)
	return ch
}
