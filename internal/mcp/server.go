// Package mcp exposes the assistant's weather and calendar tools as a Model
// Context Protocol server, so external agents can call the same tools the
// voice pipeline uses.
//
// Two tools are registered:
//
//   - get_weather: forecast for a city and day
//   - manage_calendar: list, read, create, update or delete appointments
//
// Tool results are the tools' own spoken-style text. IsError is set when the
// tool reports that the call failed.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
)

// Tool names.
const (
	ToolWeather  = "get_weather"
	ToolCalendar = "manage_calendar"
)

// Forecaster answers weather questions and reports whether the lookup
// succeeded. [weather.Client] implements it.
type Forecaster interface {
	ForecastResult(ctx context.Context, city, dayHint string) (string, bool)
}

// CalendarExecutor runs calendar requests and reports whether they
// succeeded. [calendar.Client] implements it.
type CalendarExecutor interface {
	ExecuteResult(ctx context.Context, req calendar.Request) (string, bool)
}

// WeatherArgs are the get_weather arguments.
type WeatherArgs struct {
	City string `json:"city,omitempty" jsonschema:"city to forecast; defaults to the assistant's home city"`
	Day  string `json:"day,omitempty" jsonschema:"day to forecast such as today, tomorrow or a weekday name"`
}

// CalendarArgs are the manage_calendar arguments.
type CalendarArgs struct {
	Action      string `json:"action" jsonschema:"one of list, read, create, update, delete"`
	Title       string `json:"title,omitempty" jsonschema:"appointment title"`
	StartTime   string `json:"start_time,omitempty" jsonschema:"start time as YYYY-MM-DDTHH:MM"`
	EndTime     string `json:"end_time,omitempty" jsonschema:"end time as YYYY-MM-DDTHH:MM; defaults to one hour after start"`
	Location    string `json:"location,omitempty" jsonschema:"appointment location"`
	Description string `json:"description,omitempty" jsonschema:"appointment description"`
	EventID     *int   `json:"event_id,omitempty" jsonschema:"appointment ID for read, update and delete"`
	Next        bool   `json:"next,omitempty" jsonschema:"with list, return only the next appointment"`
}

// Request converts a into a calendar request. An unknown action is an error.
func (a CalendarArgs) Request() (calendar.Request, error) {
	action := calendar.Action(strings.ToLower(strings.TrimSpace(a.Action)))
	switch action {
	case calendar.ActionList, calendar.ActionRead, calendar.ActionCreate, calendar.ActionUpdate, calendar.ActionDelete:
	default:
		return calendar.Request{}, fmt.Errorf("unknown calendar action %q", a.Action)
	}
	return calendar.Request{
		Action:      action,
		Title:       a.Title,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Location:    a.Location,
		Description: a.Description,
		EventID:     a.EventID,
		Next:        a.Next,
	}, nil
}

// Config configures [NewServer].
type Config struct {
	Weather  Forecaster
	Calendar CalendarExecutor

	// DefaultCity is used when get_weather is called without a city.
	DefaultCity string

	Version string
}

// NewServer returns an MCP server with the configured tools registered. A
// nil tool is left out.
func NewServer(cfg Config) *mcpsdk.Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	server := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "voxdesk", Version: cfg.Version}, nil)

	if cfg.Weather != nil {
		mcpsdk.AddTool(server, &mcpsdk.Tool{
			Name:        ToolWeather,
			Description: "Get the weather forecast for a city. Returns one spoken sentence.",
		}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args WeatherArgs) (*mcpsdk.CallToolResult, any, error) {
			city := strings.TrimSpace(args.City)
			if city == "" {
				city = cfg.DefaultCity
			}
			day := args.Day
			if day == "" {
				day = "today"
			}
			observe.Logger(ctx).Info("mcp tool call", "tool", ToolWeather, "city", city, "day", day)
			return textResult(cfg.Weather.ForecastResult(ctx, city, day)), nil, nil
		})
	}

	if cfg.Calendar != nil {
		mcpsdk.AddTool(server, &mcpsdk.Tool{
			Name:        ToolCalendar,
			Description: "Manage the team calendar: list, read, create, update or delete appointments.",
		}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, args CalendarArgs) (*mcpsdk.CallToolResult, any, error) {
			req, err := args.Request()
			if err != nil {
				return textResult(err.Error(), false), nil, nil
			}
			observe.Logger(ctx).Info("mcp tool call", "tool", ToolCalendar, "action", string(req.Action))
			return textResult(cfg.Calendar.ExecuteResult(ctx, req)), nil, nil
		})
	}
	return server
}

func textResult(text string, ok bool) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: !ok,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

// ServeStdio runs server over stdin and stdout until ctx is cancelled or the
// client disconnects.
func ServeStdio(ctx context.Context, server *mcpsdk.Server) error {
	slog.Info("mcp server on stdio")
	err := server.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: stdio: %w", err)
	}
	return nil
}

// Handler serves server over streamable HTTP.
func Handler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return server }, nil)
}

// ListenAndServe serves server over streamable HTTP on addr at path until
// ctx is cancelled.
func ListenAndServe(ctx context.Context, server *mcpsdk.Server, addr, path string, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle(path, Handler(server))
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mcp server listening", "addr", addr, "path", path)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("mcp: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mcp: shutdown: %w", err)
	}
	return nil
}
