package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gatilho_backend/models"
)

const (
	SendGridSendURL     = "https://api.sendgrid.com/v3/mail/send"
	EmailRequestTimeout = 10 * time.Second
)

// Notifier is the outbound notification sink used by the trigger pipeline.
// Dispatch failures are non-fatal to callers.
type Notifier interface {
	SendAlertEmail(toEmail, ticker string, alertType models.AlertType, condition models.Condition, targetValue, currentValue float64) error
}

// EmailNotificationService sends alert emails through SendGrid. Without an
// API key it degrades to logging the message, which keeps local development
// working end to end.
type EmailNotificationService struct {
	apiKey     string
	from       string
	sendURL    string
	httpClient *http.Client
}

// NewEmailNotificationService creates the email sink
func NewEmailNotificationService(apiKey, from string) *EmailNotificationService {
	return &EmailNotificationService{
		apiKey:  apiKey,
		from:    from,
		sendURL: SendGridSendURL,
		httpClient: &http.Client{
			Timeout: EmailRequestTimeout,
		},
	}
}

// sendGridMessage is the minimal v3 mail/send payload
type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendAlertEmail dispatches one trigger notification
func (s *EmailNotificationService) SendAlertEmail(toEmail, ticker string, alertType models.AlertType, condition models.Condition, targetValue, currentValue float64) error {
	subject := fmt.Sprintf("Alerta disparado: %s", ticker)
	body := fmt.Sprintf(
		"Seu alerta para %s foi disparado.\n\nTipo: %s\nCondição: %s %.2f\nValor atual: %.2f\n",
		ticker, alertType.Label(), condition, targetValue, currentValue,
	)

	if s.apiKey == "" {
		log.Printf("Email (dev mode) to=%s subject=%q type=%s condition=%s %.2f current=%.2f",
			toEmail, subject, alertType.Label(), condition, targetValue, currentValue)
		return nil
	}

	msg := sendGridMessage{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: toEmail}}},
		},
		From:    sendGridAddress{Email: s.from},
		Subject: subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: body},
		},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to build email payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email dispatch returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
