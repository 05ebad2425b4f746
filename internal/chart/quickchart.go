// Package chart renders chart requests into QuickChart image URLs and merges
// the resulting figures into section markdown.
package chart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deepreport/internal/llm"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// DefaultBaseURL is the public QuickChart endpoint.
const DefaultBaseURL = "https://quickchart.io"

const (
	maxContentRunes = 3000
	pixelsPerInch   = 100
)

const dataSystemPrompt = `You extract chart data from report text.

Return strict JSON only:
{
  "labels": ["label"],
  "datasets": [{"label": "series name", "data": [1.0]}]
}

Rules:
1. Use only figures stated in the text. Never invent numbers.
2. Every dataset has exactly one value per label. Three to eight labels work best.
3. Pie charts use a single dataset.
4. Scatter charts use numeric labels as the x values.
5. If the text has no usable figures, return {"labels": [], "datasets": []}.`

// Data is the extracted chart series.
type Data struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is one named series.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// QuickChart asks the model for chart data and builds a QuickChart URL.
type QuickChart struct {
	client    types.LLMClient
	baseURL   string
	shortURLs bool
	http      *http.Client
}

// Option configures a QuickChart renderer.
type Option func(*QuickChart)

// WithShortURLs registers each chart with /chart/create and returns the
// hosted URL instead of an inline config URL.
func WithShortURLs(hc *http.Client) Option {
	return func(q *QuickChart) {
		q.shortURLs = true
		if hc != nil {
			q.http = hc
		}
	}
}

// NewQuickChart creates a renderer. An empty baseURL selects DefaultBaseURL.
func NewQuickChart(client types.LLMClient, baseURL string, opts ...Option) *QuickChart {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	q := &QuickChart{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Render returns an image URL for req drawn from content. It returns an
// empty URL and no error when the content holds no usable figures.
func (q *QuickChart) Render(ctx context.Context, content string, req types.ChartRequirement, section types.Section) (string, error) {
	timer := logging.StartTimer(logging.CategoryChart, "QuickChart.Render")
	defer timer.Stop()

	chartType := types.NormalizeChartType(req.Type)
	user := fmt.Sprintf("Chart type: %s\nChart description: %s\nSection: %s\n\nText:\n%s\n\nReturn the chart data as JSON.",
		chartType, req.Description, section.Level1, truncateRunes(content, maxContentRunes))

	resp, err := q.client.CompleteWithSystem(ctx, dataSystemPrompt, user)
	if err != nil {
		return "", fmt.Errorf("chart data extraction failed: %w", err)
	}

	var data Data
	if err := llm.DecodeJSON(resp, &data); err != nil {
		return "", fmt.Errorf("failed to parse chart data: %w", err)
	}
	if err := data.Validate(chartType); err != nil {
		logging.ChartDebug("No chart for %q: %v", section.Level1, err)
		return "", nil
	}

	config, err := BuildConfig(chartType, req.Description, data)
	if err != nil {
		return "", err
	}
	width, height := dimensions(req)

	if q.shortURLs {
		return q.create(ctx, config, width, height)
	}
	u := fmt.Sprintf("%s/chart?w=%d&h=%d&bkg=white&c=%s", q.baseURL, width, height, url.QueryEscape(string(config)))
	logging.Chart("Chart built for %q: %s, %d labels", section.Level1, chartType, len(data.Labels))
	return u, nil
}

// Validate checks that the data can be drawn as chartType.
func (d Data) Validate(chartType string) error {
	minLabels := 2
	if chartType == types.ChartScatter {
		minLabels = 3
	}
	if len(d.Labels) < minLabels {
		return fmt.Errorf("need at least %d labels, got %d", minLabels, len(d.Labels))
	}
	if len(d.Datasets) == 0 {
		return fmt.Errorf("no datasets")
	}
	for _, ds := range d.Datasets {
		if len(ds.Data) != len(d.Labels) {
			return fmt.Errorf("dataset %q has %d values for %d labels", ds.Label, len(ds.Data), len(d.Labels))
		}
	}
	return nil
}

type chartJS struct {
	Type    string         `json:"type"`
	Data    chartJSData    `json:"data"`
	Options map[string]any `json:"options,omitempty"`
}

type chartJSData struct {
	Labels   []string         `json:"labels,omitempty"`
	Datasets []chartJSDataset `json:"datasets"`
}

type chartJSDataset struct {
	Label string `json:"label,omitempty"`
	Data  any    `json:"data"`
	Fill  *bool  `json:"fill,omitempty"`
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BuildConfig renders data as a chart.js configuration.
func BuildConfig(chartType, title string, data Data) ([]byte, error) {
	cfg := chartJS{
		Type: chartType,
		Options: map[string]any{
			"title":  map[string]any{"display": title != "", "text": title},
			"legend": map[string]any{"display": len(data.Datasets) > 1 || chartType == types.ChartPie},
		},
	}

	datasets := data.Datasets
	if chartType == types.ChartPie && len(datasets) > 1 {
		datasets = datasets[:1]
	}

	if chartType == types.ChartScatter {
		for _, ds := range datasets {
			pts := make([]point, len(ds.Data))
			for i, y := range ds.Data {
				x, err := strconv.ParseFloat(strings.TrimSpace(data.Labels[i]), 64)
				if err != nil {
					x = float64(i + 1)
				}
				pts[i] = point{X: x, Y: y}
			}
			cfg.Data.Datasets = append(cfg.Data.Datasets, chartJSDataset{Label: ds.Label, Data: pts})
		}
		return json.Marshal(cfg)
	}

	cfg.Data.Labels = data.Labels
	for _, ds := range datasets {
		out := chartJSDataset{Label: ds.Label, Data: ds.Data}
		if chartType == types.ChartLine {
			noFill := false
			out.Fill = &noFill
		}
		cfg.Data.Datasets = append(cfg.Data.Datasets, out)
	}
	return json.Marshal(cfg)
}

// create registers config with QuickChart and returns the hosted image URL.
func (q *QuickChart) create(ctx context.Context, config []byte, width, height int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"chart":           json.RawMessage(config),
		"width":           width,
		"height":          height,
		"backgroundColor": "white",
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/chart/create", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := q.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("quickchart request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("quickchart returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode quickchart response: %w", err)
	}
	if !result.Success || result.URL == "" {
		return "", fmt.Errorf("quickchart did not return a chart url")
	}
	return result.URL, nil
}

// dimensions converts the requested size in inches to pixels.
func dimensions(req types.ChartRequirement) (int, int) {
	w, h := req.Width, req.Height
	if w <= 0 {
		w = 10
	}
	if h <= 0 {
		h = 6
	}
	return w * pixelsPerInch, h * pixelsPerInch
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
