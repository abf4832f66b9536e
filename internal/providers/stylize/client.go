package stylize

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

	"github.com/rs/zerolog"

	"portraits/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("stylize: api key is required")

// ErrPollTimeout is returned when the provider does not finish within the
// polling budget. Distinct from a provider-reported failure.
var ErrPollTimeout = errors.New("stylize: generation timed out")

// Options configures the stylize provider client.
type Options struct {
	APIKey          string
	BaseURL         string
	AllowedHosts    []string
	HTTPClient      *http.Client
	Logger          *infra.Logger
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Client performs HTTP calls against the stylize generation API, which
// answers a submission either synchronously with the finished artifact URL or
// with a queue handle to poll.
type Client struct {
	apiKey          string
	baseURL         string
	allowlist       HostAllowlist
	httpClient      *http.Client
	logger          *infra.Logger
	pollInterval    time.Duration
	maxPollAttempts int
}

// SubmitRequest captures the inputs for one generation.
type SubmitRequest struct {
	ImageURLs       []string
	Style           string
	EditInstruction string
	RequestID       string
}

// QueueHandle is the provider's async continuation: poll PollURL until the
// job settles, then fetch the result from FetchURL.
type QueueHandle struct {
	PollURL  string
	FetchURL string
}

// Outcome is the result of a submission: exactly one of ResultURL (sync
// path) or Handle (async path) is set.
type Outcome struct {
	ResultURL string
	Handle    *QueueHandle
}

type submitPayload struct {
	Style       string   `json:"style"`
	ImageURLs   []string `json:"image_urls"`
	Instruction string   `json:"instruction,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`
}

type submitResponse struct {
	Status   string `json:"status"`
	PollURL  string `json:"poll_url"`
	FetchURL string `json:"fetch_url"`
	Output   struct {
		ImageURL string `json:"image_url"`
	} `json:"output"`
	Error string `json:"error"`
}

type pollResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type fetchResponse struct {
	Output struct {
		ImageURL string `json:"image_url"`
	} `json:"output"`
	Error string `json:"error"`
}

// Provider status strings.
const (
	statusInQueue    = "IN_QUEUE"
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"
	statusFailed     = "FAILED"
)

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("stylize: base url is required")
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxAttempts := opts.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:          strings.TrimSpace(opts.APIKey),
		baseURL:         baseURL,
		allowlist:       NewHostAllowlist(opts.AllowedHosts),
		httpClient:      httpClient,
		logger:          logger,
		pollInterval:    pollInterval,
		maxPollAttempts: maxAttempts,
	}, nil
}

// Allowlist exposes the configured host allow-list so downstream fetches
// (artifact download) apply the same origin check.
func (c *Client) Allowlist() HostAllowlist {
	return c.allowlist
}

// Submit sends one generation request. The provider may answer with the
// finished artifact directly or with a queue handle; both are legal.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if len(req.ImageURLs) == 0 {
		return nil, errors.New("stylize: at least one image url is required")
	}
	payload := submitPayload{
		Style:       req.Style,
		ImageURLs:   req.ImageURLs,
		Instruction: strings.TrimSpace(req.EditInstruction),
		RequestID:   req.RequestID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("stylize: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("stylize: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stylize: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stylize: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail submitResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error != "" {
			return nil, fmt.Errorf("stylize: %s", detail.Error)
		}
		return nil, fmt.Errorf("stylize: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("stylize: decode response: %w", err)
	}
	switch decoded.Status {
	case statusCompleted:
		resultURL := strings.TrimSpace(decoded.Output.ImageURL)
		if resultURL == "" {
			return nil, errors.New("stylize: completed response without image url")
		}
		if err := c.allowlist.Check(resultURL); err != nil {
			return nil, err
		}
		c.logger.Debug().Str("request_id", req.RequestID).Msg("stylize: sync result")
		return &Outcome{ResultURL: resultURL}, nil
	case statusInQueue, statusInProgress:
		handle := &QueueHandle{
			PollURL:  strings.TrimSpace(decoded.PollURL),
			FetchURL: strings.TrimSpace(decoded.FetchURL),
		}
		if handle.PollURL == "" || handle.FetchURL == "" {
			return nil, errors.New("stylize: queued response without handle urls")
		}
		if err := c.allowlist.Check(handle.PollURL); err != nil {
			return nil, err
		}
		if err := c.allowlist.Check(handle.FetchURL); err != nil {
			return nil, err
		}
		c.logger.Debug().Str("request_id", req.RequestID).Msg("stylize: queued")
		return &Outcome{Handle: handle}, nil
	case statusFailed:
		return nil, fmt.Errorf("%w: %s", errProviderFailed, firstNonEmpty(decoded.Error, "submission rejected"))
	default:
		return nil, fmt.Errorf("stylize: unexpected status %q", decoded.Status)
	}
}

var errProviderFailed = errors.New("stylize: provider reported failure")

// Poll drives a queue handle to completion, sleeping between attempts, and
// returns the final artifact URL. It stops with ErrPollTimeout after the
// attempt budget. A fetch error after the provider reports COMPLETED is
// terminal: a completed job will not change its result on re-fetch.
func (c *Client) Poll(ctx context.Context, handle *QueueHandle) (string, error) {
	if handle == nil {
		return "", errors.New("stylize: nil queue handle")
	}
	for attempt := 0; attempt < c.maxPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}

		status, provErr, err := c.pollOnce(ctx, handle.PollURL)
		if err != nil {
			// Transient poll transport errors burn an attempt; keep going.
			c.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("stylize: poll attempt failed")
			continue
		}
		switch status {
		case statusInQueue, statusInProgress:
			continue
		case statusCompleted:
			return c.fetchResult(ctx, handle.FetchURL)
		case statusFailed:
			return "", fmt.Errorf("%w: %s", errProviderFailed, firstNonEmpty(provErr, "generation failed"))
		default:
			return "", fmt.Errorf("stylize: unexpected poll status %q", status)
		}
	}
	return "", ErrPollTimeout
}

func (c *Client) pollOnce(ctx context.Context, pollURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("stylize: build poll request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("stylize: poll request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("stylize: read poll response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("stylize: poll status %d", resp.StatusCode)
	}
	var decoded pollResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", "", fmt.Errorf("stylize: decode poll response: %w", err)
	}
	return decoded.Status, decoded.Error, nil
}

func (c *Client) fetchResult(ctx context.Context, fetchURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("stylize: build fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stylize: fetch result: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("stylize: read result: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("stylize: fetch status %d", resp.StatusCode)
	}
	var decoded fetchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("stylize: decode result: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: %s", errProviderFailed, decoded.Error)
	}
	resultURL := strings.TrimSpace(decoded.Output.ImageURL)
	if resultURL == "" {
		return "", errors.New("stylize: result without image url")
	}
	if err := c.allowlist.Check(resultURL); err != nil {
		return "", err
	}
	return resultURL, nil
}

// IsProviderFailure reports whether err carries an explicit FAILED status
// from the provider, as opposed to transport trouble or a timeout.
func IsProviderFailure(err error) bool {
	return errors.Is(err, errProviderFailed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
