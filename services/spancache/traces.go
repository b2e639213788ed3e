package spancache

import (
	"encoding/json"
	"time"
)

// DetailSpan is the full projection served by trace detail: everything
// the summary carries plus identity context, status, and the raw
// serialized attribute payloads.
type DetailSpan struct {
	SummarySpan

	ParentSpanID   string          `json:"parentSpanId,omitempty"`
	EnvironmentID  string          `json:"environmentId,omitempty"`
	ProjectID      string          `json:"projectId,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
	StatusCode     *StatusCode     `json:"statusCode,omitempty"`
	StatusMessage  string          `json:"statusMessage,omitempty"`
	Attributes     json.RawMessage `json:"attributes,omitempty"`
	Events         json.RawMessage `json:"events,omitempty"`
	Links          json.RawMessage `json:"links,omitempty"`
	ServiceName    string          `json:"serviceName,omitempty"`
	ServiceVersion string          `json:"serviceVersion,omitempty"`
}

// TraceDetail is the trace reconstruction response. RootSpanID is nil
// when no cached span of the trace is parentless; TotalDurationMs is
// nil when no span yields parseable timestamps.
type TraceDetail struct {
	TraceID         string       `json:"traceId"`
	Spans           []DetailSpan `json:"spans"`
	RootSpanID      *string      `json:"rootSpanId"`
	TotalDurationMs *float64     `json:"totalDurationMs"`
}

// detail projects a cached span to its trace-detail shape.
func detail(s *CachedSpan) DetailSpan {
	out := DetailSpan{
		SummarySpan:    summarize(s),
		ParentSpanID:   s.ParentSpanID,
		EnvironmentID:  s.EnvironmentID,
		ProjectID:      s.ProjectID,
		OrganizationID: s.OrganizationID,
		ServiceName:    s.ServiceName,
		ServiceVersion: s.ServiceVersion,
	}
	if s.Status != nil {
		code := s.Status.Code
		out.StatusCode = &code
		out.StatusMessage = s.Status.Message
	}
	out.Attributes = rawJSON(s.Attributes)
	out.Events = rawJSON(s.Events)
	out.Links = rawJSON(s.Links)
	return out
}

// rawJSON serializes a payload that originally arrived as JSON; a
// value that cannot round-trip is omitted rather than failing the read.
func rawJSON(v any) json.RawMessage {
	switch val := v.(type) {
	case AttrMap:
		if len(val) == 0 {
			return nil
		}
	case []SpanEvent:
		if len(val) == 0 {
			return nil
		}
	case []SpanLink:
		if len(val) == 0 {
			return nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// reconstructTrace computes root-span identity and total trace duration
// over all cached spans of one trace. The root is the span without a
// parent; when none is cached the root stays unknown rather than
// guessing among children. Total duration spans the earliest parseable
// start to the latest parseable end.
func reconstructTrace(spans []*CachedSpan) (rootSpanID *string, totalDurationMs *float64) {
	var (
		minStart UnixNano
		maxEnd   UnixNano
	)

	for _, s := range spans {
		if rootSpanID == nil && s.ParentSpanID == "" {
			id := s.SpanID
			rootSpanID = &id
		}
		if start := startTimeNanos(s); !start.IsZero() {
			minStart = minTime(minStart, start)
		}
		if !s.EndTimeUnixNano.IsZero() {
			maxEnd = maxTime(maxEnd, s.EndTimeUnixNano)
		}
	}

	if !minStart.IsZero() && !maxEnd.IsZero() {
		ms := float64(int64(maxEnd)-int64(minStart)) / float64(time.Millisecond)
		totalDurationMs = &ms
	}
	return rootSpanID, totalDurationMs
}
