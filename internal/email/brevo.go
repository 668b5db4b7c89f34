// Package email delivers outreach email through Brevo's HTTP API or a plain
// SMTP server.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"growth_backend/internal/channels"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// Config is the union of settings both email transports read.
type Config interface {
	config.EmailConfig
	config.SMTPConfig
}

// NoopSender accepts every message without delivering it.
type NoopSender struct {
	log *logger.Logger
}

// NewNoopSender creates a sender that only logs.
func NewNoopSender(log *logger.Logger) NoopSender {
	return NoopSender{log: log}
}

// Send logs msg and returns nil.
func (n NoopSender) Send(_ context.Context, msg channels.Message) error {
	if n.log != nil {
		n.log.Debug("email delivery disabled", "subject", msg.Subject)
	}
	return nil
}

// BrevoSender sends email through the Brevo transactional API.
type BrevoSender struct {
	endpoint  string
	apiKey    string
	fromName  string
	fromEmail string
	client    *http.Client
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmailRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent"`
}

// NewSender picks the email transport for cfg: SMTP when a host is set,
// Brevo otherwise. It returns nil when email is disabled.
func NewSender(cfg Config) channels.Transport {
	if !cfg.GetEmailEnabled() {
		return nil
	}
	if cfg.IsSMTPEnabled() {
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
	}
	return NewBrevoSender(brevoEndpoint, cfg.GetBrevoAPIKey(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

// NewBrevoSender creates a Brevo sender posting to endpoint.
func NewBrevoSender(endpoint, apiKey, fromEmail, fromName string) *BrevoSender {
	return &BrevoSender{
		endpoint:  endpoint,
		apiKey:    apiKey,
		fromName:  fromName,
		fromEmail: fromEmail,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send delivers msg.
func (b *BrevoSender) Send(ctx context.Context, msg channels.Message) error {
	html, err := renderHTML(msg.Subject, msg.Name, msg.Body, b.fromName)
	if err != nil {
		return err
	}

	payload := brevoEmailRequest{
		Sender:      brevoContact{Name: b.fromName, Email: b.fromEmail},
		To:          []brevoContact{{Name: msg.Name, Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: html,
		TextContent: msg.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

var (
	_ channels.Transport = NoopSender{}
	_ channels.Transport = (*BrevoSender)(nil)
)
