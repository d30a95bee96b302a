package jsonextract_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/MrWong99/voxdesk/internal/jsonextract"
)

func TestObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"action":"list"}`,
			want: `{"action":"list"}`,
		},
		{
			name: "prose and fences",
			in:   "Sure! Here you go:\n```json\n{\"action\": \"create\", \"title\": \"Dentist\"}\n```\nAnything else?",
			want: `{"action": "create", "title": "Dentist"}`,
		},
		{
			name: "single quotes",
			in:   `{'action': 'delete', 'event_id': 7}`,
			want: `{"action": "delete", "event_id": 7}`,
		},
		{
			name: "apostrophe inside double quotes",
			in:   `{"title": "Bob's birthday"}`,
			want: `{"title": "Bob's birthday"}`,
		},
		{
			name: "double quote inside single quotes",
			in:   `{'title': 'the "big" one'}`,
			want: `{"title": "the \"big\" one"}`,
		},
		{
			name: "python literals",
			in:   `{'next': True, 'event_id': None}`,
			want: `{"next": true, "event_id": null}`,
		},
		{
			name: "nested braces in strings",
			in:   `{"description": "use {curly} braces", "n": {"x": 1}} trailing }`,
			want: `{"description": "use {curly} braces", "n": {"x": 1}}`,
		},
		{
			name: "skips invalid first object",
			in:   `{not json} then {"action":"update"}`,
			want: `{"action":"update"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := jsonextract.Object(tt.in)
			if err != nil {
				t.Fatalf("Object: %v", err)
			}
			if got != tt.want {
				t.Errorf("Object =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestObject_None(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "no json here", "{unclosed", "{'a': }"} {
		if _, err := jsonextract.Object(in); !errors.Is(err, jsonextract.ErrNoObject) {
			t.Errorf("Object(%q) err = %v, want ErrNoObject", in, err)
		}
	}
}

func TestParse_LenientFields(t *testing.T) {
	t.Parallel()

	r, err := jsonextract.Parse(`Result: {'event_id': '12', 'title': 'Standup'}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := r.Get("event_id").Int(); got != 12 {
		t.Errorf("event_id = %d, want 12", got)
	}
	if r.Get("location").Exists() {
		t.Error("location should not exist")
	}
}

func TestObject_RoundTripIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{'action': 'create', 'title': 'Dentist', 'start_time': '2024-01-01T09:00'}`,
		"```json\n{\"action\":\"delete\",\"event_id\":4,\"next\":false}\n```",
		`The answer is {"title": "say \"hi\"", "location": null}.`,
	}

	for _, in := range inputs {
		first := decode(t, in)
		rendered, err := json.Marshal(first)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		second := decode(t, string(rendered))
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip changed fields:\n  %v\n  %v", first, second)
		}
	}
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	obj, err := jsonextract.Object(s)
	if err != nil {
		t.Fatalf("Object(%q): %v", s, err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(obj), &m); err != nil {
		t.Fatalf("Unmarshal(%q): %v", obj, err)
	}
	return m
}
