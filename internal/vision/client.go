// Package vision asks a hosted multimodal model to identify collectibles
// from photos and to suggest brand colors from a logo.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vitrine-shop/vitrine/internal/catalog"
	"github.com/vitrine-shop/vitrine/internal/errors"
	"github.com/vitrine-shop/vitrine/internal/images"
	"github.com/vitrine-shop/vitrine/internal/metrics"
)

// Palettes returned by AnalyzeLogoColors when the model cannot help.
var (
	FallbackPalette = []string{"#2563eb", "#0f172a", "#475569"}
	EmptyPalette    = []string{"#2563eb", "#d97706", "#dc2626"}
)

// MaxColors is the most colors AnalyzeLogoColors returns.
const MaxColors = 3

var hexColorRegex = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Analyzer identifies collectibles and suggests accent colors.
type Analyzer interface {
	// AnalyzeItem identifies the item shown in the front and back photos.
	// Fails with MISSING_CREDENTIAL when credential is blank and with
	// ANALYSIS_FAILED when the service errors. Never retries.
	AnalyzeItem(ctx context.Context, front, back string, itemType catalog.ItemType, credential string) (catalog.Analysis, error)

	// AnalyzeLogoColors returns up to MaxColors hex colors. It never fails:
	// problems yield FallbackPalette.
	AnalyzeLogoColors(ctx context.Context, logo, credential string) []string
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Model   string
	// Timeout bounds each call; 0 leaves it to the transport.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client, filling defaults for empty fields.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *Client) AnalyzeItem(ctx context.Context, front, back string, itemType catalog.ItemType, credential string) (catalog.Analysis, error) {
	if strings.TrimSpace(credential) == "" {
		return catalog.Analysis{}, errors.NewMissingCredential()
	}

	start := time.Now()
	result, err := c.analyzeItem(ctx, front, back, itemType, credential)
	if err != nil {
		metrics.RecordVision("analyze_item", "error", time.Since(start))
		c.logger.Warn("item analysis failed", "type", itemType, "error", err)
		return catalog.Analysis{}, errors.NewAnalysisFailed(err)
	}
	metrics.RecordVision("analyze_item", "ok", time.Since(start))
	return result, nil
}

func (c *Client) analyzeItem(ctx context.Context, front, back string, itemType catalog.ItemType, credential string) (catalog.Analysis, error) {
	frontPart, err := imagePart(front)
	if err != nil {
		return catalog.Analysis{}, fmt.Errorf("front image: %w", err)
	}
	backPart, err := imagePart(back)
	if err != nil {
		return catalog.Analysis{}, fmt.Errorf("back image: %w", err)
	}

	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{frontPart, backPart, {"text": itemPrompt(itemType)}},
		}},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   analysisSchema,
		},
	}

	text, err := c.generate(ctx, credential, body)
	if err != nil {
		return catalog.Analysis{}, err
	}
	return parseAnalysis(text)
}

func (c *Client) AnalyzeLogoColors(ctx context.Context, logo, credential string) []string {
	if strings.TrimSpace(credential) == "" {
		metrics.RecordVision("logo_colors", "fallback", 0)
		return clonePalette(FallbackPalette)
	}

	start := time.Now()
	colors, err := c.logoColors(ctx, logo, credential)
	if err != nil {
		metrics.RecordVision("logo_colors", "fallback", time.Since(start))
		c.logger.Warn("logo color suggestion failed", "error", err)
		return clonePalette(FallbackPalette)
	}
	metrics.RecordVision("logo_colors", "ok", time.Since(start))
	if len(colors) == 0 {
		return clonePalette(EmptyPalette)
	}
	return colors
}

func (c *Client) logoColors(ctx context.Context, logo, credential string) ([]string, error) {
	part, err := imagePart(logo)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []map[string]any{part, {"text": logoPrompt}},
		}},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   colorsSchema,
		},
	}

	text, err := c.generate(ctx, credential, body)
	if err != nil {
		return nil, err
	}
	return parseColors(text)
}

// generate posts a generateContent request and returns the first
// candidate's text.
func (c *Client) generate(ctx context.Context, credential string, payload any) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
	}

	if reason := gjson.GetBytes(raw, "promptFeedback.blockReason").String(); reason != "" {
		return "", fmt.Errorf("request blocked: %s", reason)
	}
	text := gjson.GetBytes(raw, "candidates.0.content.parts.0.text").String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no data returned from model")
	}
	return text, nil
}

func imagePart(dataURL string) (map[string]any, error) {
	if strings.TrimSpace(dataURL) == "" {
		return nil, fmt.Errorf("image is required")
	}
	mime, payload, err := images.SplitDataURL(dataURL)
	if err != nil {
		// Bare base64 without a data: header.
		mime, payload = images.DefaultMIME, dataURL
	}
	return map[string]any{
		"inlineData": map[string]any{
			"mimeType": mime,
			"data":     payload,
		},
	}, nil
}

func parseAnalysis(text string) (catalog.Analysis, error) {
	var a catalog.Analysis
	if err := json.Unmarshal([]byte(extractJSONPayload(text)), &a); err != nil {
		return catalog.Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	if strings.TrimSpace(a.ItemName) == "" {
		return catalog.Analysis{}, fmt.Errorf("parse analysis: missing itemName")
	}
	if a.Anomalies == nil {
		a.Anomalies = []string{}
	}
	if a.ConfidenceScore < 0 {
		a.ConfidenceScore = 0
	}
	if a.ConfidenceScore > 100 {
		a.ConfidenceScore = 100
	}
	return a, nil
}

func parseColors(text string) ([]string, error) {
	payload := extractJSONPayload(text)
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("parse colors: invalid JSON")
	}
	colors := make([]string, 0, MaxColors)
	for _, v := range gjson.Get(payload, "colors").Array() {
		color := strings.TrimSpace(v.String())
		if !hexColorRegex.MatchString(color) {
			continue
		}
		colors = append(colors, strings.ToLower(color))
		if len(colors) == MaxColors {
			break
		}
	}
	return colors, nil
}

// extractJSONPayload strips markdown fences and surrounding prose from a
// model reply.
func extractJSONPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "{}"
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end >= start {
		return trimmed[start : end+1]
	}
	return trimmed
}

func clonePalette(p []string) []string {
	return append([]string(nil), p...)
}
