package datapush

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const DefaultPushTimeout = 10 * time.Second

// 钉钉机器人响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// textMessage 机器人文本消息
type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// WebhookPusher 向钉钉群机器人 webhook 推送运行摘要
// 失败只返回错误，不重试
type WebhookPusher struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewWebhookPusher(webhookURL, secret string, timeout time.Duration, logger *slog.Logger) *WebhookPusher {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookPusher{
		url:    webhookURL,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		logger: logger,
	}
}

// Push 发送文本消息
func (w *WebhookPusher) Push(ctx context.Context, content string) error {
	msg := textMessage{MsgType: "text"}
	msg.Text.Content = content

	payloadBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}

	target, err := w.signedURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("推送失败: HTTP %d", resp.StatusCode)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("发送消息失败: %s", result.ErrMsg)
	}

	w.logger.Info("摘要已推送", "bytes", len(payloadBytes))
	return nil
}

// signedURL 配置了加签密钥时追加 timestamp 与 sign 参数
func (w *WebhookPusher) signedURL() (string, error) {
	if w.secret == "" {
		return w.url, nil
	}
	u, err := url.Parse(w.url)
	if err != nil {
		return "", fmt.Errorf("webhook 地址无效: %w", err)
	}
	ts := strconv.FormatInt(w.now().UnixMilli(), 10)

	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", Sign(ts, w.secret))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign 钉钉加签：base64(hmac_sha256(timestamp + "\n" + secret))
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
