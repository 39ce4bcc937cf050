package team

import (
	"context"
	"strings"
	"time"

	"github.com/Sternrassler/teamadmin/pkg/pagination"
)

// Audit log endpoints.
const (
	EndpointGetEvents         = "team_log/get_events"
	EndpointGetEventsContinue = "team_log/get_events/continue"
)

// EventQuery selects audit events. Zero times leave that end of the range open;
// an empty Category selects all categories.
type EventQuery struct {
	Start    time.Time
	End      time.Time
	Category string
	Limit    int
}

// AuditEventSource lists team audit events.
type AuditEventSource struct {
	API   API
	Query EventQuery
}

var _ pagination.Source[AuditEvent] = (*AuditEventSource)(nil)

// FetchFirst implements pagination.Source.
func (s *AuditEventSource) FetchFirst(ctx context.Context) (*pagination.Page[AuditEvent], error) {
	var w wireEventsPage
	if err := s.API.Call(ctx, EndpointGetEvents, s.Query.body(), &w); err != nil {
		return nil, err
	}
	return w.page(EndpointGetEvents)
}

// FetchNext implements pagination.Source.
func (s *AuditEventSource) FetchNext(ctx context.Context, cursor string) (*pagination.Page[AuditEvent], error) {
	var w wireEventsPage
	if err := s.API.Call(ctx, EndpointGetEventsContinue, map[string]string{"cursor": cursor}, &w); err != nil {
		return nil, err
	}
	return w.page(EndpointGetEventsContinue)
}

func (q EventQuery) body() map[string]any {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	body := map[string]any{"limit": limit}

	timeRange := map[string]string{}
	if !q.Start.IsZero() {
		timeRange["start_time"] = q.Start.UTC().Format(time.RFC3339)
	}
	if !q.End.IsZero() {
		timeRange["end_time"] = q.End.UTC().Format(time.RFC3339)
	}
	if len(timeRange) > 0 {
		body["time"] = timeRange
	}
	if q.Category != "" {
		body["category"] = strings.ToLower(q.Category)
	}
	return body
}

// ByActors keeps events whose actor email is in emails (case-insensitive).
// No emails keeps every event.
func ByActors(emails ...string) func(AuditEvent) bool {
	set := emailSet(emails)
	return func(e AuditEvent) bool {
		return len(set) == 0 || set[strings.ToLower(e.ActorEmail)]
	}
}
