package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SendResult 投递结果；失败不重试，由调用方决定
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Transport 出站通知通道
type Transport interface {
	Send(ctx context.Context, payload []byte) SendResult
}

// FeishuClient 飞书自定义机器人 Webhook
type FeishuClient struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewFeishuClient 创建飞书客户端；secret 非空时按飞书要求附加签名
func NewFeishuClient(url, secret string, timeout time.Duration, logger *zap.Logger) *FeishuClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeishuClient{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type feishuResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Send POST JSON 卡片，响应 code == 0 视为成功
func (c *FeishuClient) Send(ctx context.Context, payload []byte) SendResult {
	body, err := c.signBody(payload)
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("飞书通知网络错误", zap.Error(err))
		return SendResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	// 最大 10KB
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 10*1024))

	var fr feishuResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		c.logger.Error("飞书响应解析失败", zap.Int("status", resp.StatusCode), zap.Error(err))
		return SendResult{Error: fmt.Sprintf("invalid Feishu response (HTTP %d): %v", resp.StatusCode, err)}
	}
	if fr.Code != 0 {
		c.logger.Error("飞书通知发送失败", zap.Int("code", fr.Code), zap.String("msg", fr.Msg))
		return SendResult{Error: fmt.Sprintf("Feishu API error: %d %s", fr.Code, fr.Msg)}
	}

	c.logger.Info("飞书通知发送成功")
	return SendResult{Success: true}
}

// signBody 在顶层追加 timestamp 与 sign 字段
func (c *FeishuClient) signBody(payload []byte) ([]byte, error) {
	if c.secret == "" {
		return payload, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("签名前解析卡片失败: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	sign, err := FeishuSign(timestamp, c.secret)
	if err != nil {
		return nil, err
	}
	fields["timestamp"], _ = json.Marshal(timestamp)
	fields["sign"], _ = json.Marshal(sign)
	return json.Marshal(fields)
}

// FeishuSign 飞书签名：以 timestamp+"\n"+secret 为密钥对空消息做 HMAC-SHA256 后 base64
func FeishuSign(timestamp, secret string) (string, error) {
	h := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	if _, err := h.Write(nil); err != nil {
		return "", fmt.Errorf("计算签名失败: %w", err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
