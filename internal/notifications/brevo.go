package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoClient sends transactional email through the Brevo API. With an empty
// api key it logs the send and returns a fake message id, which keeps
// development and the memory store usable without credentials.
type BrevoClient struct {
	apiKey      string
	senderEmail string
	senderName  string
	sandbox     bool
	httpClient  *http.Client
	log         *slog.Logger
}

func NewBrevoClient(apiKey, senderEmail, senderName string, sandbox bool, log *slog.Logger) *BrevoClient {
	return &BrevoClient{
		apiKey:      apiKey,
		senderEmail: senderEmail,
		senderName:  senderName,
		sandbox:     sandbox,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

type brevoRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoPayload struct {
	Sender      brevoRecipient   `json:"sender"`
	To          []brevoRecipient `json:"to"`
	Subject     string           `json:"subject"`
	HTMLContent string           `json:"htmlContent"`
	Headers     map[string]any   `json:"headers,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

func (c *BrevoClient) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) (string, error) {
	if c.apiKey == "" {
		c.log.Info("email skipped, no api key configured",
			slog.String("to", toEmail),
			slog.String("subject", subject),
		)
		return "dev-" + fmt.Sprint(time.Now().UnixNano()), nil
	}

	payload := brevoPayload{
		Sender:      brevoRecipient{Email: c.senderEmail, Name: c.senderName},
		To:          []brevoRecipient{{Email: toEmail, Name: toName}},
		Subject:     subject,
		HTMLContent: htmlBody,
	}
	if c.sandbox {
		payload.Headers = map[string]any{"X-Sib-Sandbox": "drop"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed brevoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.MessageID, nil
}
