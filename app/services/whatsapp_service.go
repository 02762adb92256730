// Package services provides external service integrations like the messaging platform client
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/blastline/blastline-backend/config"
	"github.com/google/uuid"
)

// SendError classifies a failed platform send. Permanent errors must not be
// retried (invalid number, opted-out contact, rejected template); transient
// errors (timeouts, 5xx, rate pushback) may be retried with backoff. Skip marks
// permanent errors caused by the recipient rather than the message, so the
// dispatcher records the recipient as skipped instead of failed.
type SendError struct {
	Reason    string
	Permanent bool
	Skip      bool
	Err       error
}

// Error implements the error interface
func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("platform send failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("platform send failed (%s)", e.Reason)
}

// Unwrap returns the underlying error
func (e *SendError) Unwrap() error {
	return e.Err
}

// AsSendError extracts a SendError from an error chain
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// SendTemplateRequest carries one outbound template message
type SendTemplateRequest struct {
	ChannelPhone string   // sender number registered with the platform
	ToPhone      string   // recipient in E.164
	TemplateName string
	Language     string
	Variables    []string // positional template parameters
}

// MessageSender delivers template messages through the messaging platform.
// A successful send returns the platform-assigned message id, which later
// status callbacks reference.
type MessageSender interface {
	SendTemplate(ctx context.Context, req SendTemplateRequest) (string, error)
}

// WhatsAppSender implements MessageSender over the platform's HTTP API
type WhatsAppSender struct {
	cfg    config.PlatformConfig
	client *http.Client
}

// NewWhatsAppSender creates a new platform HTTP sender
func NewWhatsAppSender(cfg config.PlatformConfig) *WhatsAppSender {
	return &WhatsAppSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type sendMessagePayload struct {
	To       string `json:"to"`
	From     string `json:"from"`
	Type     string `json:"type"`
	Template struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []templateComponent `json:"components,omitempty"`
	} `json:"template"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// SendTemplate sends one template message and returns the platform message id
func (s *WhatsAppSender) SendTemplate(ctx context.Context, req SendTemplateRequest) (string, error) {
	payload := sendMessagePayload{
		To:   req.ToPhone,
		From: req.ChannelPhone,
		Type: "template",
	}
	payload.Template.Name = req.TemplateName
	payload.Template.Language.Code = req.Language
	if len(req.Variables) > 0 {
		component := templateComponent{Type: "body"}
		for _, v := range req.Variables {
			component.Parameters = append(component.Parameters, templateParameter{Type: "text", Text: v})
		}
		payload.Template.Components = []templateComponent{component}
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", &SendError{Reason: "encode_failed", Permanent: true, Err: err}
	}

	url := fmt.Sprintf("%s/messages", s.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", &SendError{Reason: "request_failed", Permanent: true, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", &SendError{Reason: "network_error", Permanent: false, Err: err}
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", &SendError{Reason: "decode_failed", Permanent: false, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(out.Messages) == 0 || out.Messages[0].ID == "" {
			return "", &SendError{Reason: "missing_message_id", Permanent: false, Err: fmt.Errorf("empty messages array")}
		}
		return out.Messages[0].ID, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &SendError{Reason: "platform_unavailable", Permanent: false, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	default:
		// 4xx other than 429: the platform rejected this message outright.
		reason := "platform_rejected"
		if out.Error != nil && out.Error.Type != "" {
			reason = out.Error.Type
		}
		return "", &SendError{
			Reason:    reason,
			Permanent: true,
			Skip:      recipientErrorTypes[reason],
			Err:       fmt.Errorf("http status %d", resp.StatusCode),
		}
	}
}

// recipientErrorTypes are platform error types caused by the recipient, not
// the message. They terminate the recipient as skipped rather than failed.
var recipientErrorTypes = map[string]bool{
	"invalid_recipient":   true,
	"recipient_opted_out": true,
	"recipient_not_found": true,
}

// MockMessageSender is a configurable in-memory sender for development and tests
type MockMessageSender struct {
	mu    sync.Mutex
	sent  []SendTemplateRequest
	// FailWith, when set, is returned for every send until cleared.
	FailWith error
	// FailFirst fails the first n sends with a transient error, then succeeds.
	FailFirst int
	failed    int
}

// NewMockMessageSender creates a mock sender that always succeeds
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendTemplate records the request and returns a generated message id
func (m *MockMessageSender) SendTemplate(ctx context.Context, req SendTemplateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return "", m.FailWith
	}
	if m.failed < m.FailFirst {
		m.failed++
		return "", &SendError{Reason: "platform_unavailable", Permanent: false, Err: fmt.Errorf("mock transient failure %d", m.failed)}
	}

	m.sent = append(m.sent, req)
	return "wamid." + uuid.New().String(), nil
}

// SentCount returns how many sends succeeded
func (m *MockMessageSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Sent returns a copy of the successfully sent requests
func (m *MockMessageSender) Sent() []SendTemplateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendTemplateRequest, len(m.sent))
	copy(out, m.sent)
	return out
}
