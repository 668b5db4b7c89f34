// Package sms delivers outreach text messages through a JSON HTTP gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"growth_backend/internal/channels"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
	"growth_backend/platform/phone"
)

const defaultTimeout = 15 * time.Second

// Config is the gateway and phone settings the client reads.
type Config interface {
	config.SMSConfig
	config.PhoneConfig
}

// Client posts messages to the gateway's /messages endpoint.
type Client struct {
	baseURL string
	token   string
	sender  string
	region  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

// NewClient returns nil when no gateway URL is configured.
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}
	timeout := cfg.GetSMSTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		token:   cfg.GetSMSAPIToken(),
		sender:  cfg.GetSMSSender(),
		region:  cfg.GetPhoneDefaultRegion(),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Send delivers msg.Body to msg.To after normalising it to E.164.
func (c *Client) Send(ctx context.Context, msg channels.Message) error {
	if c == nil {
		return fmt.Errorf("%s: %w", channels.SMS, channels.ErrNotConfigured)
	}

	to, err := phone.ToE164(msg.To, c.region)
	if err != nil {
		return fmt.Errorf("sms recipient: %w", err)
	}

	body, err := json.Marshal(sendRequest{From: c.sender, To: to, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result sendResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("decode sms response: %w", err)
		}
	}
	if strings.EqualFold(result.Status, "rejected") || strings.EqualFold(result.Status, "failed") {
		return fmt.Errorf("sms rejected: %s", result.Error)
	}

	c.log.Info("sms sent", "messageId", result.ID)
	return nil
}

var _ channels.Transport = (*Client)(nil)
