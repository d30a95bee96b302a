// Package convo holds the short-term conversation state carried between
// turns: the resolved [Context] and the rolling [History] sent to the chat
// model.
//
// Neither type is safe for concurrent use. The turn orchestrator is the only
// writer and runs turns strictly one at a time.
package convo

import (
	"github.com/MrWong99/voxdesk/pkg/types"
)

// DefaultCity is used when no city has been mentioned yet.
const DefaultCity = "Marburg"

// Context resolves pronouns and omitted parameters across turns. Every field
// is last-write-wins.
type Context struct {
	// LastCity is the most recent city a weather query resolved to.
	LastCity string

	// LastEventID is the most recent calendar event id seen in a tool result,
	// or nil when none has been seen.
	LastEventID *int
}

// NewContext returns a Context seeded with defaultCity, or [DefaultCity] when
// it is empty.
func NewContext(defaultCity string) Context {
	if defaultCity == "" {
		defaultCity = DefaultCity
	}
	return Context{LastCity: defaultCity}
}

// WithCity returns a copy of c with LastCity replaced. An empty city leaves c
// unchanged.
func (c Context) WithCity(city string) Context {
	if city != "" {
		c.LastCity = city
	}
	return c
}

// WithEventID returns a copy of c with LastEventID replaced.
func (c Context) WithEventID(id int) Context {
	c.LastEventID = &id
	return c
}

// EventID returns LastEventID and whether it is set.
func (c Context) EventID() (int, bool) {
	if c.LastEventID == nil {
		return 0, false
	}
	return *c.LastEventID, true
}

// History is the role-tagged dialogue sent to the chat model. Index 0 is
// always the system message once [History.SetSystem] has been called.
type History struct {
	msgs []types.Message
	max  int
}

// NewHistory returns an empty History that keeps at most maxTurns user and
// assistant messages in addition to the system message. maxTurns <= 0 means
// unbounded.
func NewHistory(maxTurns int) *History {
	return &History{max: maxTurns}
}

// SetSystem replaces the system message at index 0, inserting it when the
// history has none.
func (h *History) SetSystem(prompt string) {
	if len(h.msgs) > 0 && h.msgs[0].Role == types.RoleSystem {
		h.msgs[0].Content = prompt
		return
	}
	h.msgs = append([]types.Message{types.SystemMessage(prompt)}, h.msgs...)
}

// Append adds a user or assistant message and trims the oldest non-system
// messages beyond the configured bound.
func (h *History) Append(m types.Message) {
	h.msgs = append(h.msgs, m)
	if h.max <= 0 {
		return
	}
	offset := 0
	if len(h.msgs) > 0 && h.msgs[0].Role == types.RoleSystem {
		offset = 1
	}
	if over := len(h.msgs) - offset - h.max; over > 0 {
		h.msgs = append(h.msgs[:offset], h.msgs[offset+over:]...)
	}
}

// AppendTurn records one completed exchange.
func (h *History) AppendTurn(user, assistant string) {
	h.Append(types.UserMessage(user))
	h.Append(types.AssistantMessage(assistant))
}

// Messages returns a copy of the history.
func (h *History) Messages() []types.Message {
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of messages including the system message.
func (h *History) Len() int { return len(h.msgs) }
