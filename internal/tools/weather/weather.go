// Package weather looks up forecasts from the responsible-nlp weather API and
// renders them as one spoken sentence.
//
// Every outcome, including transport and decoding failures, is returned as
// text. The caller never has to handle an error.
//
// Usage:
//
//	c, err := weather.New(weather.DefaultURL, apiKey)
//	text := c.Forecast(ctx, "Marburg", "what's the weather tomorrow")
package weather

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// DefaultURL is the public weather endpoint.
const DefaultURL = "https://api.responsible-nlp.net/weather.php"

const (
	toolName       = "weather"
	defaultTimeout = 10 * time.Second
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. Defaults to 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock overrides the clock used to resolve "today" and "tomorrow".
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithMetrics records tool calls on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client queries the weather API. It is safe for concurrent use.
type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	now     func() time.Time
	metrics *observe.Metrics
}

// New returns a Client for the endpoint at apiURL.
func New(apiURL, apiKey string, opts ...Option) (*Client, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("weather: url must not be empty")
	}
	c := &Client{
		url:    apiURL,
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultTimeout},
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Forecast fetches the forecast for city and describes the day named by
// dayHint. dayHint is usually the user's utterance: "tomorrow" or a weekday
// name select that day, anything else means today.
func (c *Client) Forecast(ctx context.Context, city, dayHint string) string {
	text, _ := c.ForecastResult(ctx, city, dayHint)
	return text
}

// ForecastResult is Forecast that also reports whether the lookup succeeded.
func (c *Client) ForecastResult(ctx context.Context, city, dayHint string) (string, bool) {
	ctx, span := observe.StartSpan(ctx, "tool.weather")
	defer span.End()

	start := time.Now()
	text, ok := c.forecast(ctx, city, dayHint)
	c.metrics.ObserveStage(ctx, observe.StageTool, time.Since(start))

	status := "ok"
	if !ok {
		status = "error"
		observe.Logger(ctx).Warn("weather lookup failed", "city", city, "result", text)
	}
	c.metrics.RecordToolCall(ctx, toolName, status)
	return text, ok
}

func (c *Client) forecast(ctx context.Context, city, dayHint string) (string, bool) {
	form := url.Values{"place": {city}, "apikey": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Sprintf("Error connecting to Weather API: %v", err), false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Sprintf("Error connecting to Weather API: %v", err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error: Weather API returned %d", resp.StatusCode), false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error connecting to Weather API: %v", err), false
	}

	unexpected := fmt.Sprintf("Weather data found for %s, but the format is unexpected.", city)
	if !gjson.ValidBytes(body) {
		return unexpected, false
	}
	data := gjson.ParseBytes(body)
	days := data.Get("forecast").Array()
	if len(days) == 0 {
		return unexpected, false
	}

	place := city
	if p := data.Get("place").String(); p != "" {
		place = p
	}

	want := ResolveDay(dayHint, c.now())
	entry := days[0]
	for _, d := range days {
		if strings.EqualFold(strings.TrimSpace(d.Get("day").String()), want) {
			entry = d
			break
		}
	}

	day := entry.Get("day").String()
	if day == "" {
		day = want
	}
	return fmt.Sprintf("The weather in %s on %s will be %s with a high of %s°C and a low of %s°C.",
		html.UnescapeString(place),
		day,
		html.UnescapeString(orUnknown(entry.Get("weather"), "unknown")),
		orUnknown(entry.Get("temperature.max"), "?"),
		orUnknown(entry.Get("temperature.min"), "?"),
	), true
}

// orUnknown renders r as text, accepting numbers and strings alike.
func orUnknown(r gjson.Result, fallback string) string {
	if !r.Exists() || r.String() == "" {
		return fallback
	}
	return r.String()
}

var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// ResolveDay returns the English weekday name the text asks about. "tomorrow"
// wins over an explicit weekday, and an explicit weekday wins over today.
// When several weekdays are named, the first one mentioned is used.
func ResolveDay(text string, now time.Time) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tomorrow") {
		return now.AddDate(0, 0, 1).Weekday().String()
	}

	best, bestAt := "", -1
	for _, wd := range weekdays {
		name := wd.String()
		if i := strings.Index(lower, strings.ToLower(name)); i >= 0 && (bestAt < 0 || i < bestAt) {
			best, bestAt = name, i
		}
	}
	if best != "" {
		return best
	}
	return now.Weekday().String()
}
