package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	internal "github.com/amacgov/revenue-collection/internal"
)

// SenderAPI delivers receipt notifications over external channels. Failures
// are reported to the caller but never block payment processing.
type SenderAPI interface {
	SendSMS(ctx context.Context, phone, message string) error
	SendEmail(ctx context.Context, email, subject, body string) error
}

// HTTPSender posts notification requests to the configured SMS and email
// gateway endpoints.
type HTTPSender struct {
	httpClient      *http.Client
	smsGatewayURL   string
	emailGatewayURL string
}

func NewHTTPSender(cfg internal.NotificationConfig) *HTTPSender {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSender{
		httpClient:      &http.Client{Timeout: timeout},
		smsGatewayURL:   cfg.SMSGatewayURL,
		emailGatewayURL: cfg.EmailGatewayURL,
	}
}

type smsRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type emailRequest struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *HTTPSender) SendSMS(ctx context.Context, phone, message string) error {
	if s.smsGatewayURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}
	return s.post(ctx, s.smsGatewayURL, smsRequest{Phone: phone, Message: message})
}

func (s *HTTPSender) SendEmail(ctx context.Context, email, subject, body string) error {
	if s.emailGatewayURL == "" {
		return fmt.Errorf("email gateway not configured")
	}
	return s.post(ctx, s.emailGatewayURL, emailRequest{Email: email, Subject: subject, Body: body})
}

func (s *HTTPSender) post(ctx context.Context, endpoint string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	return nil
}
