package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/retry"

	"golang.org/x/time/rate"
)

type Message struct {
	IdempotencyKey string
	From           string
	To             string
	ReplyTo        string
	Subject        string
	Body           string
}

type SendResult struct {
	MessageID string
}

type Transport interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// RelayTransport hands messages to an HTTP mail relay. Requests carry an
// Idempotency-Key so a re-send of the same attempt chain is collapsed by the
// relay.
type RelayTransport struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

type relayRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type relayResponse struct {
	MessageID string `json:"message_id"`
}

func NewRelayTransport(cfg config.OutboundConfig, logger *logging.Logger) *RelayTransport {
	baseURL := strings.TrimSpace(cfg.RelayURL)
	if baseURL == "" {
		return nil
	}
	rps := cfg.RelayRatePerSec
	if rps <= 0 {
		rps = 2
	}
	timeout := cfg.TransportTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RelayTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.RelayToken,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

func (t *RelayTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	if t == nil || t.client == nil {
		return SendResult{}, errors.New("mail relay not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return SendResult{}, retry.MarkPermanent(errors.New("invalid recipient: empty address"))
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return SendResult{}, err
	}

	b, err := json.Marshal(relayRequest{
		From:    msg.From,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return SendResult{}, err
	}

	endpoint := t.baseURL + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	// 409 is the relay's answer to a replayed idempotency key; it still
	// reports the original message id.
	if resp.StatusCode == http.StatusConflict {
		var out relayResponse
		if json.Unmarshal(rb, &out) == nil && out.MessageID != "" {
			t.logger.Info("relay replay collapsed", "idempotency_key", msg.IdempotencyKey, "message_id", out.MessageID)
			return SendResult{MessageID: out.MessageID}, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(rb))
		t.logger.Warn("relay send failed", "endpoint", endpoint, "status", resp.StatusCode, "body", body)
		return SendResult{}, &retry.StatusError{Code: resp.StatusCode, Body: body}
	}

	var out relayResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return SendResult{}, fmt.Errorf("decode relay response: %w", err)
	}
	return SendResult{MessageID: strings.TrimSpace(out.MessageID)}, nil
}

var _ Transport = (*RelayTransport)(nil)
