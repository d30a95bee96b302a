// Package calendar drives the responsible-nlp calendar REST API.
//
// The API is addressed by a team calendar ID sent as the "calenderid" query
// parameter (the remote spelling) on every request. Individual events are
// addressed with an additional "id" parameter.
//
// [Client.Execute] runs one [Request] and always answers with text; failures
// are described, never returned. [Client.List] and [Client.Read] expose the
// raw events for callers that need them.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/voxdesk/internal/observe"
)

// DefaultURL is the public calendar endpoint.
const DefaultURL = "https://api.responsible-nlp.net/calendar.php"

// TimeLayout is the minute-precision format sent to the API.
const TimeLayout = "2006-01-02T15:04"

const (
	toolName       = "calendar"
	defaultTimeout = 10 * time.Second

	defaultTitle       = "New Meeting"
	defaultLocation    = "TBD"
	defaultDescription = "Voice Entry"

	// NoAppointments is the answer to listing an empty calendar.
	NoAppointments = "You have no appointments scheduled."
)

// Action names a calendar operation.
type Action string

const (
	ActionList   Action = "list"
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Request describes one calendar operation. Empty string fields are treated
// as absent.
type Request struct {
	Action      Action
	Title       string
	StartTime   string
	EndTime     string
	Location    string
	Description string

	// EventID addresses a single event. Nil when unknown.
	EventID *int

	// Next asks a list request for only the upcoming appointment.
	Next bool
}

// Event is a calendar entry as stored by the remote API.
type Event struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// String renders the event the way list answers do.
func (e Event) String() string {
	title := e.Title
	if title == "" {
		title = "Untitled"
	}
	start := e.StartTime
	if start == "" {
		start = "No time"
	}
	return fmt.Sprintf("[ID %d] %s on %s", e.ID, title, start)
}

// APIError is returned by [Client.List] and [Client.Read] when the server
// answers with an unexpected status or an undecodable body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar: api returned %d: %s", e.Status, e.Body)
}

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

// WithClock overrides the clock used for default start times.
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

// Client talks to the calendar API. It is safe for concurrent use.
type Client struct {
	url        string
	calendarID string
	http       *http.Client
	now        func() time.Time
	metrics    *observe.Metrics
}

// New returns a Client for the calendar calendarID at apiURL.
func New(apiURL, calendarID string, opts ...Option) (*Client, error) {
	var errs []error
	if apiURL == "" {
		errs = append(errs, errors.New("calendar: url must not be empty"))
	}
	if calendarID == "" {
		errs = append(errs, errors.New("calendar: calendar id must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	c := &Client{
		url:        apiURL,
		calendarID: calendarID,
		http:       &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Execute runs req and describes the outcome.
func (c *Client) Execute(ctx context.Context, req Request) string {
	text, _ := c.ExecuteResult(ctx, req)
	return text
}

// ExecuteResult is Execute that also reports whether the request succeeded.
// Failures are still described in text.
func (c *Client) ExecuteResult(ctx context.Context, req Request) (string, bool) {
	ctx, span := observe.StartSpan(ctx, "tool.calendar")
	defer span.End()

	start := time.Now()
	var (
		text string
		ok   bool
	)
	switch req.Action {
	case ActionList:
		text, ok = c.list(ctx, req.Next)
	case ActionRead:
		text, ok = c.read(ctx, req.EventID)
	case ActionCreate:
		text, ok = c.create(ctx, req)
	case ActionUpdate:
		text, ok = c.update(ctx, req)
	case ActionDelete:
		text, ok = c.remove(ctx, req.EventID)
	default:
		text = "Unknown calendar action."
	}
	c.metrics.ObserveStage(ctx, observe.StageTool, time.Since(start))

	status := "ok"
	if !ok {
		status = "error"
	}
	c.metrics.RecordToolCall(ctx, toolName, status)
	observe.Logger(ctx).Info("calendar call", "action", string(req.Action), "status", status)
	return text, ok
}

// List returns every event in the calendar.
func (c *Client) List(ctx context.Context) ([]Event, error) {
	status, body, err := c.do(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !gjson.ValidBytes(body) {
		return nil, &APIError{Status: status, Body: string(body)}
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		if res.IsObject() {
			return []Event{eventFrom(res)}, nil
		}
		return nil, nil
	}
	var events []Event
	for _, r := range res.Array() {
		events = append(events, eventFrom(r))
	}
	return events, nil
}

// Read returns the event with the given id.
func (c *Client) Read(ctx context.Context, id int) (Event, error) {
	status, body, err := c.do(ctx, http.MethodGet, url.Values{"id": {strconv.Itoa(id)}}, nil)
	if err != nil {
		return Event{}, err
	}
	if status != http.StatusOK || !gjson.ValidBytes(body) {
		return Event{}, &APIError{Status: status, Body: string(body)}
	}
	res := gjson.ParseBytes(body)
	if res.IsArray() {
		res = res.Get("0")
	}
	if !res.IsObject() {
		return Event{}, &APIError{Status: status, Body: string(body)}
	}
	return eventFrom(res), nil
}

func (c *Client) list(ctx context.Context, next bool) (string, bool) {
	events, err := c.List(ctx)
	if err != nil {
		return describeListError(err), false
	}
	if len(events) == 0 {
		return NoAppointments, true
	}

	if next {
		first := events[0]
		for _, e := range events[1:] {
			if e.ID < first.ID {
				first = e
			}
		}
		if detail, err := c.Read(ctx, first.ID); err == nil {
			first = detail
		} else {
			observe.Logger(ctx).Warn("calendar: read next appointment", "err", err, "id", first.ID)
		}
		return "Your next appointment is " + withLocation(first) + ".", true
	}

	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, ". "), true
}

func (c *Client) read(ctx context.Context, id *int) (string, bool) {
	if id == nil {
		return "I need an appointment ID to read it.", false
	}
	e, err := c.Read(ctx, *id)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Sprintf("Failed to read appointment ID %d. %s", *id, apiErr.Body), false
		}
		return connectError(err), false
	}
	return withLocation(e) + ".", true
}

func (c *Client) create(ctx context.Context, req Request) (string, bool) {
	title := orDefault(req.Title, defaultTitle)
	start, end := req.StartTime, req.EndTime
	switch {
	case start == "":
		now := c.now()
		start = now.Format(TimeLayout)
		end = now.Add(time.Hour).Format(TimeLayout)
	case end == "":
		start, end = startAndEnd(start)
	default:
		start, end = NormalizeTime(start), NormalizeTime(end)
	}

	payload := map[string]string{
		"title":       title,
		"start_time":  start,
		"end_time":    end,
		"location":    orDefault(req.Location, defaultLocation),
		"description": orDefault(req.Description, defaultDescription),
	}
	status, body, err := c.do(ctx, http.MethodPost, nil, payload)
	if err != nil {
		return connectError(err), false
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "Error creating event: " + string(body), false
	}

	if id := createdID(body); id != "" {
		return fmt.Sprintf("Successfully created appointment '%s' with ID %s.", title, id), true
	}
	return fmt.Sprintf("Successfully created appointment '%s'.", title), true
}

func (c *Client) update(ctx context.Context, req Request) (string, bool) {
	if req.EventID == nil {
		return "I need an appointment ID to update it.", false
	}

	payload := map[string]string{}
	set := func(key, v string) {
		if v != "" {
			payload[key] = v
		}
	}
	set("title", req.Title)
	if req.StartTime != "" {
		set("start_time", NormalizeTime(req.StartTime))
	}
	if req.EndTime != "" {
		set("end_time", NormalizeTime(req.EndTime))
	}
	set("location", req.Location)
	set("description", req.Description)
	if len(payload) == 0 {
		return "You didn't tell me what to update.", false
	}

	id := *req.EventID
	status, body, err := c.do(ctx, http.MethodPut, url.Values{"id": {strconv.Itoa(id)}}, payload)
	if err != nil {
		return connectError(err), false
	}
	if status != http.StatusOK {
		return "Failed to update. API Error: " + string(body), false
	}
	return fmt.Sprintf("Successfully updated appointment ID %d.", id), true
}

// remove deletes the event with the given id. Without an id the event with
// the highest id, the most recently created one, is deleted.
func (c *Client) remove(ctx context.Context, id *int) (string, bool) {
	var target int
	title := ""
	if id != nil {
		target = *id
	} else {
		events, err := c.List(ctx)
		if err != nil {
			observe.Logger(ctx).Warn("calendar: list before delete", "err", err)
			return "Could not retrieve list to identify appointment to delete.", false
		}
		if len(events) == 0 {
			return "There is nothing to delete, your calendar is empty.", true
		}
		last := events[0]
		for _, e := range events[1:] {
			if e.ID > last.ID {
				last = e
			}
		}
		target, title = last.ID, last.Title
	}

	status, body, err := c.do(ctx, http.MethodDelete, url.Values{"id": {strconv.Itoa(target)}}, nil)
	if err != nil {
		return connectError(err), false
	}
	if status != http.StatusOK {
		return "Failed to delete. " + string(body), false
	}
	if title != "" {
		return fmt.Sprintf("Deleted appointment ID %d (%s).", target, title), true
	}
	return fmt.Sprintf("Deleted appointment ID %d.", target), true
}

// do sends one request. extra is merged into the query after calenderid;
// a non-nil payload is sent as JSON.
func (c *Client) do(ctx context.Context, method string, extra url.Values, payload any) (int, []byte, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return 0, nil, fmt.Errorf("calendar: parse url: %w", err)
	}
	q := u.Query()
	q.Set("calenderid", c.calendarID)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("calendar: encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("calendar: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("calendar: %s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("calendar: read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// eventFrom decodes one event leniently: ids may arrive as numbers or
// numeric strings.
func eventFrom(r gjson.Result) Event {
	return Event{
		ID:          int(r.Get("id").Int()),
		Title:       r.Get("title").String(),
		StartTime:   r.Get("start_time").String(),
		EndTime:     r.Get("end_time").String(),
		Location:    r.Get("location").String(),
		Description: r.Get("description").String(),
	}
}

func createdID(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	res := gjson.ParseBytes(body)
	if res.IsArray() {
		res = res.Get("0")
	}
	if id := res.Get("id"); id.Exists() && id.String() != "" {
		return id.String()
	}
	return ""
}

var inputLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.Replace(strings.TrimSpace(s), " ", "T", 1)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeTime rewrites s to minute precision. Either a "T" or a space may
// separate date and time and seconds are optional. Unparseable input is
// returned unchanged.
func NormalizeTime(s string) string {
	if t, ok := parseTime(s); ok {
		return t.Format(TimeLayout)
	}
	return s
}

// startAndEnd derives a one hour slot from start. When start cannot be
// parsed both ends are start unchanged and the API decides.
func startAndEnd(start string) (string, string) {
	t, ok := parseTime(start)
	if !ok {
		return start, start
	}
	return t.Format(TimeLayout), t.Add(time.Hour).Format(TimeLayout)
}

func withLocation(e Event) string {
	if e.Location == "" {
		return e.String()
	}
	return e.String() + " at " + e.Location
}

func describeListError(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "Failed to list appointments. Response: " + apiErr.Body
	}
	return connectError(err)
}

func connectError(err error) string {
	return fmt.Sprintf("Error connecting to Calendar API: %v", err)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
