package datapush

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/smtp"
	"os"
	"strings"

	"github.com/jordan-wright/email"
)

// Mailer 通过 SMTPS 发送运行摘要与导出文件
type Mailer struct {
	Server   string
	Username string
	Password string
	To       []string
	logger   *slog.Logger
}

func NewMailer(server, username, password string, to []string, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{Server: server, Username: username, Password: password, To: to, logger: logger}
}

// Compose 构建邮件，不存在的附件只记录警告
func (m *Mailer) Compose(subject, body string, attachments ...string) *email.Email {
	e := email.NewEmail()
	e.From = fmt.Sprintf("RailPunctuality <%s>", m.Username)
	e.To = m.To
	e.Subject = subject
	e.Text = []byte(body)

	for _, path := range attachments {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("附件文件不存在", "path", path)
			continue
		}
		if _, err := e.AttachFile(path); err != nil {
			m.logger.Warn("附件添加失败", "path", path, "error", err)
		}
	}
	return e
}

// Send 显式 TLS 发送，服务器地址缺少端口时使用 465
func (m *Mailer) Send(subject, body string, attachments ...string) error {
	if len(m.To) == 0 {
		return fmt.Errorf("未配置收件人")
	}
	e := m.Compose(subject, body, attachments...)

	smtpAddr := m.Server
	if !strings.Contains(smtpAddr, ":") {
		smtpAddr += ":465"
	}
	host := strings.Split(smtpAddr, ":")[0]

	err := e.SendWithTLS(
		smtpAddr,
		smtp.PlainAuth("", m.Username, m.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, smtpAddr)
	}
	m.logger.Info("邮件发送成功", "to", m.To, "attachments", len(e.Attachments))
	return nil
}
