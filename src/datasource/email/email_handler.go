// email_handler.go
package email

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ====================== 附件保存 ======================

// 可作为数据集的附件扩展名
var datasetExtensions = []string{".csv", ".txt", ".xlsx"}

// AttachmentSaver 将邮件中的数据集附件保存到本地目录
type AttachmentSaver struct {
	DataDir string // 附件保存目录

	// UID -> 附件名模式 -> 保存路径
	processed map[uint32]map[string]string
	mu        sync.RWMutex
	logger    *slog.Logger
}

func NewAttachmentSaver(dataDir string, logger *slog.Logger) *AttachmentSaver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentSaver{
		DataDir:   dataDir,
		processed: make(map[uint32]map[string]string),
		logger:    logger,
	}
}

// lookup 检查该邮件附件是否已保存过（线程安全）
func (h *AttachmentSaver) lookup(uid uint32, pattern string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	path, ok := h.processed[uid][pattern]
	return path, ok
}

func (h *AttachmentSaver) markAsProcessed(uid uint32, pattern, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.processed[uid] == nil {
		h.processed[uid] = map[string]string{}
	}
	h.processed[uid][pattern] = path
}

// SelectAttachment 按文件名模式选择附件
// pattern 为空时取第一个数据集格式的附件，支持 filepath.Match 通配符
func SelectAttachment(email *Email, pattern string) (*Attachment, error) {
	for _, a := range email.Attachments {
		if pattern == "" {
			if isDatasetFile(a.Filename) {
				return a, nil
			}
			continue
		}
		if strings.EqualFold(a.Filename, pattern) {
			return a, nil
		}
		if ok, _ := filepath.Match(pattern, a.Filename); ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("邮件 %q 中没有匹配 %q 的附件", email.Subject, pattern)
}

func isDatasetFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range datasetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Save 保存匹配的附件并返回本地路径，同一封邮件只写一次
func (h *AttachmentSaver) Save(email *Email, pattern, prefix string) (string, error) {
	if path, ok := h.lookup(email.UID, pattern); ok {
		return path, nil
	}

	attachment, err := SelectAttachment(email, pattern)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}

	name := filepath.Base(attachment.Filename)
	if prefix != "" {
		name = prefix + filepath.Ext(name)
	}
	filePath := filepath.Join(h.DataDir, name)
	if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
		return "", fmt.Errorf("保存附件失败: %w", err)
	}

	h.logger.Info("附件已保存",
		"subject", email.Subject,
		"date", email.Date.Format("2006-01-02 15:04:05"),
		"path", filePath)
	h.markAsProcessed(email.UID, pattern, filePath)
	return filePath, nil
}
