package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/pkg/logging"
	"autoapply/internal/pkg/retry"
)

var ErrMalformedContent = errors.New("generator returned malformed content")

type Request struct {
	ApplicantName  string   `json:"applicant_name"`
	ApplicantEmail string   `json:"applicant_email"`
	ListingTitle   string   `json:"listing_title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	ResumeName     string   `json:"resume_name"`
	ResumeContent  string   `json:"resume_content"`
	MatchReasons   []string `json:"match_reasons"`
}

type Content struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	CoverLetter string `json:"cover_letter"`
}

type Client interface {
	Generate(ctx context.Context, req Request) (Content, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

func NewClient(cfg config.OutboundConfig, logger *logging.Logger) Client {
	baseURL := strings.TrimSpace(cfg.GeneratorURL)
	if baseURL == "" {
		return nil
	}
	timeout := cfg.GeneratorTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *httpClient) Generate(ctx context.Context, in Request) (Content, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return Content{}, err
	}

	endpoint := c.baseURL + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return Content{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	rb, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return Content{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(rb))
		c.logger.Warn("generator request failed", "endpoint", endpoint, "status", resp.StatusCode, "body", body)
		return Content{}, &retry.StatusError{Code: resp.StatusCode, Body: body}
	}

	out, err := ParseContent(rb)
	if err != nil {
		c.logger.Warn("generator content rejected", "listing", in.ListingTitle, "company", in.Company, "error", err)
		return Content{}, err
	}
	return out, nil
}

var fenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n?(.*?)\\n?\\s*```\\s*$")

// stripFences removes a markdown code fence wrapped around the whole text.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ParseContent decodes a generator response strictly: unknown fields are
// rejected and subject and body are required. A body that is itself a JSON
// document means the model leaked its envelope and is rejected too.
func ParseContent(raw []byte) (Content, error) {
	text := strings.TrimSpace(stripFences(string(raw)))

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var out Content
	if err := dec.Decode(&out); err != nil {
		return Content{}, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if dec.More() {
		return Content{}, fmt.Errorf("%w: trailing data", ErrMalformedContent)
	}

	out.Subject = strings.TrimSpace(out.Subject)
	out.Body = strings.TrimSpace(stripFences(out.Body))
	out.CoverLetter = strings.TrimSpace(stripFences(out.CoverLetter))

	if out.Subject == "" {
		return Content{}, fmt.Errorf("%w: subject is empty", ErrMalformedContent)
	}
	if out.Body == "" {
		return Content{}, fmt.Errorf("%w: body is empty", ErrMalformedContent)
	}
	if strings.ContainsAny(out.Subject, "\r\n") {
		return Content{}, fmt.Errorf("%w: subject spans lines", ErrMalformedContent)
	}
	if looksLikeEnvelope(out.Body) {
		return Content{}, fmt.Errorf("%w: body is a JSON envelope", ErrMalformedContent)
	}
	return out, nil
}

func looksLikeEnvelope(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return false
	}
	_, hasSubject := m["subject"]
	_, hasBody := m["body"]
	return hasSubject || hasBody
}

var _ Client = (*httpClient)(nil)
