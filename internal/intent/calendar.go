package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/voxdesk/internal/convo"
	"github.com/MrWong99/voxdesk/internal/jsonextract"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/tools/calendar"
)

// actionKeywords is checked in order; the first group present in the text
// decides the action regardless of what the Extractor proposed.
var actionKeywords = []struct {
	action   calendar.Action
	keywords []string
}{
	{calendar.ActionUpdate, []string{"update", "change", "move"}},
	{calendar.ActionDelete, []string{"delete", "remove"}},
	{calendar.ActionList, []string{"list", "show", "where", "find"}},
	{calendar.ActionCreate, []string{"add", "create", "schedule"}},
}

// KeywordAction returns the calendar action named by a keyword in text.
func KeywordAction(text string) (calendar.Action, bool) {
	words := tokenize(text)
	for _, group := range actionKeywords {
		if containsAny(words, group.keywords) {
			return group.action, true
		}
	}
	return "", false
}

// CalendarRequest resolves the calendar operation text asks for. Parameters
// come from the Extractor; when it fails or answers without a JSON object the
// model's proposal is taken to be a plain list. Keywords in text, the next
// flag and the context event id apply either way.
func (r *Router) CalendarRequest(ctx context.Context, text string, cc convo.Context) calendar.Request {
	params := r.calendarParams(ctx, text)

	req := calendar.Request{
		Action:      calendar.Action(strings.ToLower(strings.TrimSpace(params.Get("action").String()))),
		Title:       params.Get("title").String(),
		StartTime:   params.Get("start_time").String(),
		EndTime:     params.Get("end_time").String(),
		Location:    params.Get("location").String(),
		Description: params.Get("description").String(),
		EventID:     eventID(params.Get("event_id")),
		Next:        containsWord(tokenize(text), "next"),
	}
	if action, ok := KeywordAction(text); ok {
		req.Action = action
	}
	switch req.Action {
	case calendar.ActionRead:
		// A read needs an id; "what is next" is answered by the list.
		if req.EventID == nil || req.Next {
			req.Action = calendar.ActionList
		}
	case calendar.ActionList, calendar.ActionCreate, calendar.ActionUpdate, calendar.ActionDelete:
	default:
		req.Action = calendar.ActionList
	}

	if req.EventID == nil && (req.Action == calendar.ActionUpdate || req.Action == calendar.ActionDelete) {
		if id, ok := cc.EventID(); ok {
			req.EventID = &id
		}
	}
	observe.Logger(ctx).Debug("intent: calendar request", "action", string(req.Action), "next", req.Next)
	return req
}

// listParams stands in for an Extractor answer that could not be used.
var listParams = gjson.Parse(`{"action":"list"}`)

func (r *Router) calendarParams(ctx context.Context, text string) gjson.Result {
	if r.extractor == nil {
		return listParams
	}
	log := observe.Logger(ctx)
	raw, err := r.extractor.CalendarParams(ctx, text, r.now())
	if err != nil {
		log.Warn("intent: calendar extraction failed", "err", err)
		return listParams
	}
	params, err := jsonextract.Parse(raw)
	if err != nil {
		log.Warn("intent: calendar extraction unparseable", "err", err, "raw", raw)
		return listParams
	}
	return params
}

// eventID reads an id that may be a number, a numeric string or text such
// as "ID 4".
func eventID(r gjson.Result) *int {
	switch r.Type {
	case gjson.Number:
		id := int(r.Int())
		return &id
	case gjson.String:
		s := strings.TrimSpace(r.String())
		if id, err := strconv.Atoi(s); err == nil {
			return &id
		}
		if m := digits.FindString(s); m != "" {
			id, _ := strconv.Atoi(m)
			return &id
		}
	}
	return nil
}

var (
	digits    = regexp.MustCompile(`\d+`)
	idPattern = regexp.MustCompile(`\bID\s+(\d+)`)
)

// ScanEventID returns the first "ID <n>" mentioned in a tool answer.
func ScanEventID(text string) (int, bool) {
	m := idPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}
