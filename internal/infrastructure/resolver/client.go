package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/domain/application"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/retry"
)

type Request struct {
	Company     string `json:"company"`
	ListingURL  string `json:"listing_url"`
	Description string `json:"description"`
}

type Recipient struct {
	Address    string
	Confidence application.Confidence
	Source     string
}

type Client interface {
	Resolve(ctx context.Context, req Request) (Recipient, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

type resolveResponse struct {
	Email      string `json:"email"`
	Confidence string `json:"confidence"`
	Source     string `json:"source"`
}

func NewClient(cfg config.OutboundConfig, logger *logging.Logger) Client {
	baseURL := strings.TrimSpace(cfg.ResolverURL)
	if baseURL == "" {
		return nil
	}
	timeout := cfg.ResolverTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Resolve asks the resolver service for the company's hiring address. A 404
// is a normal "nothing found" answer.
func (c *httpClient) Resolve(ctx context.Context, in Request) (Recipient, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return Recipient{}, err
	}

	endpoint := c.baseURL + "/resolve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return Recipient{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Recipient{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Recipient{Confidence: application.ConfidenceNone}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Recipient{}, &retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(rb))}
	}

	var out resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Recipient{}, fmt.Errorf("decode resolver response: %w", err)
	}

	rec := Recipient{
		Confidence: application.ParseConfidence(strings.ToUpper(strings.TrimSpace(out.Confidence))),
		Source:     strings.TrimSpace(out.Source),
	}
	addr, ok := NormalizeAddress(out.Email)
	if !ok {
		if out.Email != "" {
			c.logger.Warn("resolver returned invalid address", "company", in.Company, "address", out.Email)
		}
		rec.Confidence = application.ConfidenceNone
		return rec, nil
	}
	rec.Address = addr
	return rec, nil
}

// NormalizeAddress validates a bare address and returns it lower-cased.
// Display names are dropped.
func NormalizeAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	a, err := mail.ParseAddress(raw)
	if err != nil {
		return "", false
	}
	at := strings.LastIndex(a.Address, "@")
	if at <= 0 || !strings.Contains(a.Address[at:], ".") {
		return "", false
	}
	return strings.ToLower(a.Address), true
}

var _ Client = (*httpClient)(nil)
