package spancache

import (
	"testing"
	"time"
)

func TestMergeSpans_NoExisting(t *testing.T) {
	incoming := CachedSpan{
		Span: Span{
			TraceID:           "trace-1",
			SpanID:            "span-1",
			Name:              "chat",
			StartTimeUnixNano: 100,
		},
		EnvironmentID: "prod",
	}

	merged := mergeSpans(nil, incoming)

	if merged.TraceID != "trace-1" || merged.SpanID != "span-1" {
		t.Errorf("identity = (%q, %q), want (trace-1, span-1)", merged.TraceID, merged.SpanID)
	}
	if merged.StartTimeUnixNano != 100 {
		t.Errorf("StartTimeUnixNano = %v, want 100", merged.StartTimeUnixNano)
	}
	if merged.EnvironmentID != "prod" {
		t.Errorf("EnvironmentID = %q, want %q", merged.EnvironmentID, "prod")
	}
}

func TestMergeSpans_CommutativeTimes(t *testing.T) {
	start := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", Name: "op", StartTimeUnixNano: 1_000},
	}
	finish := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", EndTimeUnixNano: 5_000},
	}

	a := mergeSpans(&start, finish)
	b := mergeSpans(&finish, start)

	for name, merged := range map[string]CachedSpan{"start-then-finish": a, "finish-then-start": b} {
		if merged.StartTimeUnixNano != 1_000 {
			t.Errorf("%s: StartTimeUnixNano = %v, want 1000", name, merged.StartTimeUnixNano)
		}
		if merged.EndTimeUnixNano != 5_000 {
			t.Errorf("%s: EndTimeUnixNano = %v, want 5000", name, merged.EndTimeUnixNano)
		}
		if merged.Name != "op" {
			t.Errorf("%s: Name = %q, want %q", name, merged.Name, "op")
		}
	}
}

func TestMergeSpans_EarliestStartLatestEnd(t *testing.T) {
	existing := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", StartTimeUnixNano: 2_000, EndTimeUnixNano: 3_000},
	}
	incoming := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", StartTimeUnixNano: 1_000, EndTimeUnixNano: 9_000},
	}

	merged := mergeSpans(&existing, incoming)

	if merged.StartTimeUnixNano != 1_000 {
		t.Errorf("StartTimeUnixNano = %v, want 1000", merged.StartTimeUnixNano)
	}
	if merged.EndTimeUnixNano != 9_000 {
		t.Errorf("EndTimeUnixNano = %v, want 9000", merged.EndTimeUnixNano)
	}
}

func TestMergeSpans_EmptyIncomingKeepsDetail(t *testing.T) {
	existing := CachedSpan{
		Span: Span{
			TraceID:      "t",
			SpanID:       "s",
			ParentSpanID: "parent",
			Name:         "chat.completion",
			Kind:         "client",
			Attributes:   AttrMap{"gen_ai.request.model": "gpt-4o"},
			Events:       []SpanEvent{{Name: "first-token"}},
			Links:        []SpanLink{{TraceID: "other", SpanID: "linked"}},
			Status:       &SpanStatus{Code: StatusOK},
		},
		ServiceName:    "agent",
		ServiceVersion: "1.0.0",
	}
	incoming := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", EndTimeUnixNano: 10},
	}

	merged := mergeSpans(&existing, incoming)

	if merged.ParentSpanID != "parent" {
		t.Errorf("ParentSpanID = %q, want %q", merged.ParentSpanID, "parent")
	}
	if merged.Name != "chat.completion" {
		t.Errorf("Name = %q, want %q", merged.Name, "chat.completion")
	}
	if merged.Kind != "client" {
		t.Errorf("Kind = %q, want %q", merged.Kind, "client")
	}
	if len(merged.Attributes) != 1 {
		t.Errorf("Attributes = %v, want existing attributes retained", merged.Attributes)
	}
	if len(merged.Events) != 1 {
		t.Errorf("Events = %v, want existing events retained", merged.Events)
	}
	if len(merged.Links) != 1 {
		t.Errorf("Links = %v, want existing links retained", merged.Links)
	}
	if merged.Status == nil || merged.Status.Code != StatusOK {
		t.Errorf("Status = %v, want existing status retained", merged.Status)
	}
	if merged.ServiceName != "agent" || merged.ServiceVersion != "1.0.0" {
		t.Errorf("service identity = (%q, %q), want (agent, 1.0.0)", merged.ServiceName, merged.ServiceVersion)
	}
}

func TestMergeSpans_IncomingWins(t *testing.T) {
	existing := CachedSpan{
		Span: Span{
			TraceID:    "t",
			SpanID:     "s",
			Name:       "old-name",
			Attributes: AttrMap{"stale": true},
			Status:     &SpanStatus{Code: StatusOK},
		},
	}
	incoming := CachedSpan{
		Span: Span{
			TraceID:    "t",
			SpanID:     "s",
			Name:       "new-name",
			Attributes: AttrMap{"fresh": true},
			Status:     &SpanStatus{Code: StatusError, Message: "boom"},
		},
	}

	merged := mergeSpans(&existing, incoming)

	if merged.Name != "new-name" {
		t.Errorf("Name = %q, want %q", merged.Name, "new-name")
	}
	if _, ok := merged.Attributes["fresh"]; !ok {
		t.Errorf("Attributes = %v, want incoming attributes", merged.Attributes)
	}
	if _, ok := merged.Attributes["stale"]; ok {
		t.Errorf("Attributes = %v, stale attributes should be replaced", merged.Attributes)
	}
	if merged.Status.Code != StatusError || merged.Status.Message != "boom" {
		t.Errorf("Status = %+v, want incoming error status", merged.Status)
	}
}

func TestMergeSpans_ExplicitUnsetStatusWins(t *testing.T) {
	existing := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", Status: &SpanStatus{Code: StatusError}},
	}
	incoming := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s", Status: &SpanStatus{Code: StatusUnset}},
	}

	merged := mergeSpans(&existing, incoming)

	if merged.Status == nil || merged.Status.Code != StatusUnset {
		t.Errorf("Status = %+v, want explicit unset status to win", merged.Status)
	}
}

func TestMergeSpans_ReceivedAtFallback(t *testing.T) {
	earlier := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	existing := CachedSpan{
		Span:       Span{TraceID: "t", SpanID: "s"},
		ReceivedAt: earlier,
	}
	incoming := CachedSpan{
		Span: Span{TraceID: "t", SpanID: "s"},
	}

	merged := mergeSpans(&existing, incoming)

	if !merged.ReceivedAt.Equal(earlier) {
		t.Errorf("ReceivedAt = %v, want %v", merged.ReceivedAt, earlier)
	}
}

func TestMinMaxTime(t *testing.T) {
	tests := []struct {
		name    string
		a, b    UnixNano
		wantMin UnixNano
		wantMax UnixNano
	}{
		{"both set", 10, 20, 10, 20},
		{"reversed", 20, 10, 10, 20},
		{"a unset", 0, 20, 20, 20},
		{"b unset", 10, 0, 10, 10},
		{"both unset", 0, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := minTime(tt.a, tt.b); got != tt.wantMin {
				t.Errorf("minTime(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.wantMin)
			}
			if got := maxTime(tt.a, tt.b); got != tt.wantMax {
				t.Errorf("maxTime(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.wantMax)
			}
		})
	}
}
