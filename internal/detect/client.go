package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fakebuster/fakebuster/internal/model"
)

// Service endpoints, relative to the base URL.
const (
	TextEndpoint  = "/detect-text"
	ImageEndpoint = "/detect-image"
)

// FallbackPercent is the percentage reported with a fallback text verdict.
const FallbackPercent = model.FallbackScore * 100

// maxResponseSize caps the response body read from the service.
const maxResponseSize = 1 << 20

// Observer receives one observation per detection call.
type Observer interface {
	ObserveDetection(media model.MediaType, outcome Outcome, latency time.Duration)
}

// Scorer is the fail-soft scoring surface used by the scan pipeline and the
// extension surfaces.
type Scorer interface {
	ScoreImage(ctx context.Context, imageURL string) model.ScoreResult
	ScoreText(ctx context.Context, text string) model.TextVerdict
}

// Client talks to the detection service. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	timeout    time.Duration
	limiter    *rate.Limiter
	observer   Observer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit limits outbound requests to rps per second with an equal burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
}

// WithObserver registers an observer for call outcomes.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{},
		timeout:    10 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type textRequest struct {
	TextStr string `json:"text_str"`
}

type textResponse struct {
	Result *string `json:"result"`
	LLM    string  `json:"LLM"`
}

type imageRequest struct {
	ImageURL string `json:"image_url"`
}

type imageResponse struct {
	DeepfakeScore *float64 `json:"deepfake_score"`
}

// DetectText scores a piece of text.
func (c *Client) DetectText(ctx context.Context, text string) (model.TextVerdict, error) {
	start := time.Now()
	verdict, err := c.detectText(ctx, text)
	c.observe(model.MediaText, err, time.Since(start))
	return verdict, err
}

func (c *Client) detectText(ctx context.Context, text string) (model.TextVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return model.TextVerdict{}, ErrEmptyInput
	}

	var resp textResponse
	if err := c.post(ctx, TextEndpoint, textRequest{TextStr: text}, &resp); err != nil {
		return model.TextVerdict{}, err
	}
	if resp.Result == nil {
		return model.TextVerdict{}, &ParseError{Endpoint: TextEndpoint, Field: "result"}
	}

	percent := ParsePercent(*resp.Result)
	return model.TextVerdict{
		Percent:    percent,
		ResultText: FormatResultText(*resp.Result, percent, resp.LLM),
		Model:      resp.LLM,
		Score: model.ScoreResult{
			Score: clamp(percent / 100),
			Label: resp.LLM,
			Media: model.MediaText,
		},
	}, nil
}

// DetectImage scores the image at imageURL.
func (c *Client) DetectImage(ctx context.Context, imageURL string) (model.ScoreResult, error) {
	start := time.Now()
	result, err := c.detectImage(ctx, imageURL)
	c.observe(model.MediaImage, err, time.Since(start))
	return result, err
}

func (c *Client) detectImage(ctx context.Context, imageURL string) (model.ScoreResult, error) {
	if strings.TrimSpace(imageURL) == "" {
		return model.ScoreResult{}, ErrEmptyInput
	}

	var resp imageResponse
	if err := c.post(ctx, ImageEndpoint, imageRequest{ImageURL: imageURL}, &resp); err != nil {
		return model.ScoreResult{}, err
	}
	if resp.DeepfakeScore == nil {
		return model.ScoreResult{}, &ParseError{Endpoint: ImageEndpoint, Field: "deepfake_score"}
	}

	return model.ScoreResult{
		Score: clamp(*resp.DeepfakeScore),
		Media: model.MediaImage,
	}, nil
}

// ScoreText is DetectText with every failure converted to the fallback verdict.
func (c *Client) ScoreText(ctx context.Context, text string) model.TextVerdict {
	verdict, err := c.DetectText(ctx, text)
	if err != nil {
		c.logger.Warn("text detection failed, using fallback score",
			"error", err,
			"text", text,
		)
		return FallbackVerdict()
	}
	return verdict
}

// ScoreImage is DetectImage with every failure converted to the fallback score.
func (c *Client) ScoreImage(ctx context.Context, imageURL string) model.ScoreResult {
	result, err := c.DetectImage(ctx, imageURL)
	if err != nil {
		c.logger.Warn("image detection failed, using fallback score",
			"error", err,
			"url", imageURL,
		)
		return model.NewFallbackResult(model.MediaImage)
	}
	return result
}

// FallbackVerdict is the text verdict substituted for a failed call.
func FallbackVerdict() model.TextVerdict {
	return model.TextVerdict{
		Percent:    FallbackPercent,
		ResultText: fallbackText(),
		Score:      model.NewFallbackResult(model.MediaText),
	}
}

// post sends one JSON request and decodes the JSON answer into out.
func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Endpoint: endpoint, Err: err}
		}
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("detect: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize)) //nolint:errcheck // drain for reuse
		return &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Endpoint: endpoint, Err: err}
	}
	return nil
}

func (c *Client) observe(media model.MediaType, err error, latency time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveDetection(media, OutcomeOf(err), latency)
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return model.FallbackScore
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
