// Package wechat delivers pushes through a WeCom group-robot webhook.
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"anypush/internal/apperr"
	"anypush/internal/content"
	"anypush/internal/dispatch"
	"anypush/internal/settings"
)

const serviceName = "WeCom"

// maxResponse caps how much of a webhook reply is read.
const maxResponse = 64 << 10

type Channel struct {
	webhook string
	client  *http.Client
}

// Build is the dispatch.Builder for the "wechat" service key.
func Build(raw json.RawMessage, client *http.Client) (dispatch.Channel, error) {
	var cfg settings.WechatConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, apperr.Configf("pushServices.wechat", "decode: %v", err)
	}
	return New(cfg, client)
}

func New(cfg settings.WechatConfig, client *http.Client) (*Channel, error) {
	hook := strings.TrimSpace(cfg.Webhook)
	if hook == "" {
		return nil, apperr.Configf("pushServices.wechat.webhook", "webhook is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Channel{webhook: hook, client: client}, nil
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type reply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Payload is the request body for f. Only the formatted content is sent;
// nothing is prepended or appended here.
func Payload(f content.Formatted) ([]byte, error) {
	var msg textMessage
	msg.MsgType = "text"
	msg.Text.Content = f.Content
	return json.Marshal(msg)
}

func (c *Channel) Send(ctx context.Context, f content.Formatted) error {
	body, err := Payload(f)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhook, bytes.NewReader(body))
	if err != nil {
		return apperr.Configf("pushServices.wechat.webhook", "%v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponse))
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode}
	}

	var r reply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(&r); err != nil {
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode, Message: "invalid response: " + err.Error()}
	}
	if r.ErrCode != 0 {
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode, Code: r.ErrCode, Message: r.ErrMsg}
	}
	return nil
}
