package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const mobizonSendURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

// Client — SMS через Mobizon. DryRun (или пустой ключ) только логирует.
type Client struct {
	ApiKey  string
	Sender  string
	DryRun  bool
	BaseURL string
	HTTP    *http.Client
	Logger  *zap.Logger
}

type SendSMSResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewClientWithOptions(apiKey, sender string, dryRun bool, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ApiKey:  apiKey,
		Sender:  sender,
		DryRun:  dryRun,
		BaseURL: mobizonSendURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Logger:  logger,
	}
}

func (c *Client) dryRun() bool {
	return c.DryRun || c.ApiKey == "" || c.ApiKey == "dry-run"
}

// SendSMS returns the provider message id.
func (c *Client) SendSMS(ctx context.Context, to, text string) (string, error) {
	if c.dryRun() {
		c.Logger.Info("mobizon dry-run", zap.String("to", to), zap.String("sender", c.Sender))
		return "", nil
	}

	form := url.Values{
		"apiKey":    {c.ApiKey},
		"recipient": {strings.TrimPrefix(to, "+")},
		"text":      {text},
	}
	if c.Sender != "" {
		form.Set("from", c.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("send SMS request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read SMS response: %w", err)
	}

	var result SendSMSResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("mobizon returned error code %d: %s", result.Code, result.Message)
	}
	c.Logger.Debug("mobizon sent", zap.String("to", to), zap.String("message_id", result.Data.MessageID))
	return result.Data.MessageID, nil
}
