// Package gateway is the client for the external scraper/analysis service.
// The bot does no image or text understanding itself; every intent maps to
// one endpoint here, single attempt, caller-supplied deadline.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xaenox/wishcard-bot/internal/models"
	"github.com/xaenox/wishcard-bot/internal/payload"
	"go.uber.org/zap"
)

const DefaultMaxImageBytes = 5 * 1024 * 1024

// Placeholder names used when the service returns no name.
const (
	placeholderName     = "N/A"
	placeholderWishName = "Желание"
)

type Client struct {
	baseURL       string
	maxImageBytes int64
	http          *http.Client
	logger        *zap.Logger
}

// New builds a client for the analysis service at baseURL. An empty baseURL
// yields a disabled client: Enabled reports false and the dispatcher answers
// with a "service unavailable" message instead of calling out.
func New(baseURL string, maxImageBytes int64, logger *zap.Logger) *Client {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxImageBytes: maxImageBytes,
		http:          newHTTPClient(),
		logger:        logger,
	}
}

// newHTTPClient pools connections across dispatches. Deadlines come from the
// per-call context, not from the client, because each intent has its own
// timeout.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether the service was configured at all.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// analysisResponse is the service's JSON shape for all three endpoints.
type analysisResponse struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
	Size     string   `json:"size"`
	Image    string   `json:"image"`
}

// AnalyzeImage submits raw photo bytes for analysis. The size cap is checked
// here, before any network traffic, so an oversized photo costs nothing.
func (c *Client) AnalyzeImage(ctx context.Context, data []byte) (models.AnalysisResult, error) {
	if int64(len(data)) > c.maxImageBytes {
		return models.AnalysisResult{}, &TooLargeError{Size: int64(len(data)), Limit: c.maxImageBytes}
	}

	body := map[string]string{"image": base64.StdEncoding.EncodeToString(data)}
	return c.post(ctx, "analyze-image", "/analyze-image", body, placeholderName)
}

// AnalyzeText submits a wish-text message for analysis.
func (c *Client) AnalyzeText(ctx context.Context, text string) (models.AnalysisResult, error) {
	body := map[string]string{"text": text}
	return c.post(ctx, "analyze-text", "/analyze-text", body, placeholderWishName)
}

// AnalyzeLink asks the service to scrape a product page. The result always
// carries the original URL as SourceLink, whatever the service says.
func (c *Client) AnalyzeLink(ctx context.Context, rawURL string) (models.AnalysisResult, error) {
	endpoint := c.baseURL + "/?url=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.AnalysisResult{}, &UpstreamError{Op: "analyze-link", Err: err}
	}

	result, err := c.do("analyze-link", req, placeholderName)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	if runes := []rune(rawURL); len(runes) > payload.MaxLinkRunes {
		rawURL = string(runes[:payload.MaxLinkRunes])
	}
	result.SourceLink = rawURL
	return result, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any, fallbackName string) (models.AnalysisResult, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return models.AnalysisResult{}, &UpstreamError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return models.AnalysisResult{}, &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(op, req, fallbackName)
}

func (c *Client) do(op string, req *http.Request, fallbackName string) (models.AnalysisResult, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return models.AnalysisResult{}, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.AnalysisResult{}, &UpstreamError{Op: op, Status: resp.StatusCode}
	}

	var parsed analysisResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Debug("Malformed analysis response",
			zap.String("op", op),
			zap.Error(err))
		return models.AnalysisResult{}, &UpstreamError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}

	result := models.AnalysisResult{
		Name:         parsed.Name,
		Price:        parsed.Price,
		Currency:     parsed.Currency,
		Size:         parsed.Size,
		ImagePreview: parsed.Image,
	}
	if result.Name == "" {
		result.Name = fallbackName
	}
	return result, nil
}
