// Package mock provides a scriptable [intent.Extractor] for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/internal/intent"
)

// Extractor is a mock implementation of intent.Extractor.
type Extractor struct {
	mu sync.Mutex

	// CityAnswer and CityErr are returned by City.
	CityAnswer string
	CityErr    error

	// CalendarAnswer and CalendarErr are returned by CalendarParams.
	CalendarAnswer string
	CalendarErr    error

	// CityCalls and CalendarCalls record the text of every call.
	CityCalls     []string
	CalendarCalls []string

	// CalendarNow records the clock value of every CalendarParams call.
	CalendarNow []time.Time
}

var _ intent.Extractor = (*Extractor)(nil)

// City records the call and returns CityAnswer, CityErr.
func (e *Extractor) City(_ context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CityCalls = append(e.CityCalls, text)
	return e.CityAnswer, e.CityErr
}

// CalendarParams records the call and returns CalendarAnswer, CalendarErr.
func (e *Extractor) CalendarParams(_ context.Context, text string, now time.Time) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CalendarCalls = append(e.CalendarCalls, text)
	e.CalendarNow = append(e.CalendarNow, now)
	return e.CalendarAnswer, e.CalendarErr
}

// CityCallCount returns how many times City was called.
func (e *Extractor) CityCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.CityCalls)
}
