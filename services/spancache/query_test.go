package spancache

import (
	"testing"
	"time"
)

var queryWindow = SearchRequest{
	StartTime: time.Unix(0, 0),
	EndTime:   time.Unix(1_000_000, 0),
}

func testSpan(name string, startNano UnixNano, attrs AttrMap) *CachedSpan {
	return &CachedSpan{
		Span: Span{
			TraceID:           "trace-1",
			SpanID:            "span-" + name,
			Name:              name,
			StartTimeUnixNano: startNano,
			Attributes:        attrs,
		},
	}
}

func TestMatchesSearch_TimeRange(t *testing.T) {
	req := SearchRequest{
		StartTime: time.Unix(100, 0),
		EndTime:   time.Unix(200, 0),
	}

	tests := []struct {
		name  string
		start UnixNano
		want  bool
	}{
		{"inside", UnixNano(time.Unix(150, 0).UnixNano()), true},
		{"at lower bound", UnixNano(time.Unix(100, 0).UnixNano()), true},
		{"at upper bound", UnixNano(time.Unix(200, 0).UnixNano()), true},
		{"before", UnixNano(time.Unix(99, 0).UnixNano()), false},
		{"after", UnixNano(time.Unix(201, 0).UnixNano()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSpan("op", tt.start, nil)
			if got := matchesSearch(s, &req); got != tt.want {
				t.Errorf("matchesSearch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesSearch_ReceivedAtFallback(t *testing.T) {
	req := SearchRequest{
		StartTime: time.Unix(100, 0),
		EndTime:   time.Unix(200, 0),
	}
	s := &CachedSpan{
		Span:       Span{TraceID: "t", SpanID: "s", Name: "op"},
		ReceivedAt: time.Unix(150, 0),
	}
	if !matchesSearch(s, &req) {
		t.Error("span with only ingestion time should match on that time")
	}

	timeless := &CachedSpan{Span: Span{TraceID: "t", SpanID: "s2"}}
	if matchesSearch(timeless, &req) {
		t.Error("span with no time at all should never match")
	}
}

func TestMatchesNameTokens(t *testing.T) {
	tests := []struct {
		name  string
		span  string
		query string
		want  bool
	}{
		{"single token", "chat.completion", "chat", true},
		{"all tokens must hit", "chat.completion", "chat completion", true},
		{"one token misses", "chat.completion", "chat embedding", false},
		{"case insensitive", "Chat.Completion", "CHAT", true},
		{"punctuation split", "recommend_book", "recommend-book", true},
		{"empty query matches", "anything", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesNameTokens(tt.span, tt.query); got != tt.want {
				t.Errorf("matchesNameTokens(%q, %q) = %v, want %v", tt.span, tt.query, got, tt.want)
			}
		})
	}
}

func TestMatchesNamePrefix(t *testing.T) {
	tests := []struct {
		name   string
		span   string
		prefix string
		want   bool
	}{
		{"exact", "chat", "chat", true},
		{"dotted child", "chat.completion", "chat", true},
		{"not a word boundary", "chatter", "chat", false},
		{"unrelated", "embed", "chat", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesNamePrefix(tt.span, tt.prefix); got != tt.want {
				t.Errorf("matchesNamePrefix(%q, %q) = %v, want %v", tt.span, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestMatchesMessages_FirstPresentKeyDecides(t *testing.T) {
	attrs := AttrMap{
		"gen_ai.input_messages":      "tell me about whales",
		"mirascope.response.messages": "tell me about sharks",
	}

	if !matchesMessages(attrs, inputMessageKeys, "WHALES") {
		t.Error("substring in the highest-priority key should match")
	}
	// The lower-priority key is never consulted once a higher one is
	// present.
	if matchesMessages(attrs, inputMessageKeys, "sharks") {
		t.Error("lower-priority key consulted despite higher key present")
	}
	if matchesMessages(AttrMap{}, inputMessageKeys, "whales") {
		t.Error("no message keys present should not match")
	}
}

func TestMatchesAttributeFilter(t *testing.T) {
	attrs := AttrMap{
		"gen_ai.system": "openai",
		"retries":       float64(2),
		"nested":        map[string]any{"a": 1},
	}

	tests := []struct {
		name   string
		filter AttributeFilter
		want   bool
	}{
		{"eq hit", AttributeFilter{Key: "gen_ai.system", Operator: "eq", Value: "openai"}, true},
		{"eq miss", AttributeFilter{Key: "gen_ai.system", Operator: "eq", Value: "anthropic"}, false},
		{"eq missing key", AttributeFilter{Key: "absent", Operator: "eq", Value: "x"}, false},
		{"eq numeric coercion", AttributeFilter{Key: "retries", Operator: "eq", Value: "2"}, true},
		{"neq hit", AttributeFilter{Key: "gen_ai.system", Operator: "neq", Value: "anthropic"}, true},
		{"neq missing key passes", AttributeFilter{Key: "absent", Operator: "neq", Value: "x"}, true},
		{"contains hit", AttributeFilter{Key: "gen_ai.system", Operator: "contains", Value: "pen"}, true},
		{"contains missing key", AttributeFilter{Key: "absent", Operator: "contains", Value: "x"}, false},
		{"exists hit", AttributeFilter{Key: "retries", Operator: "exists"}, true},
		{"exists miss", AttributeFilter{Key: "absent", Operator: "exists"}, false},
		{"non-scalar eq", AttributeFilter{Key: "nested", Operator: "eq", Value: "x"}, false},
		{"unknown operator", AttributeFilter{Key: "gen_ai.system", Operator: "matches"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesAttributeFilter(attrs, tt.filter); got != tt.want {
				t.Errorf("matchesAttributeFilter(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMatchesSearch_TokenRange(t *testing.T) {
	span := testSpan("chat", 1_000, AttrMap{
		"gen_ai.usage.input_tokens":  float64(100),
		"gen_ai.usage.output_tokens": float64(50),
	})
	noTokens := testSpan("chat", 1_000, nil)

	minTok := int64(100)
	req := queryWindow
	req.MinTokens = &minTok

	if !matchesSearch(span, &req) {
		t.Error("150 total tokens should satisfy minTokens=100")
	}
	if matchesSearch(noTokens, &req) {
		t.Error("span with unresolvable tokens must not match a token-range query")
	}

	maxTok := int64(120)
	req.MaxTokens = &maxTok
	if matchesSearch(span, &req) {
		t.Error("150 total tokens should fail maxTokens=120")
	}
}

func TestMatchesSearch_DurationRange(t *testing.T) {
	span := testSpan("op", 1_000, nil)
	span.EndTimeUnixNano = span.StartTimeUnixNano + UnixNano(250*time.Millisecond)

	minDur := 100.0
	maxDur := 200.0
	req := queryWindow
	req.MinDurationMs = &minDur

	if !matchesSearch(span, &req) {
		t.Error("250ms duration should satisfy minDuration=100")
	}

	req.MaxDurationMs = &maxDur
	if matchesSearch(span, &req) {
		t.Error("250ms duration should fail maxDuration=200")
	}

	open := testSpan("op", 1_000, nil)
	if matchesSearch(open, &req) {
		t.Error("span without an end time must not match a duration query")
	}
}

func TestMatchesSearch_AllowLists(t *testing.T) {
	span := testSpan("chat", 1_000, AttrMap{
		"gen_ai.request.model": "gpt-4o",
		"gen_ai.system":        "openai",
	})

	req := queryWindow
	req.Model = []string{"gpt-4o", "claude-sonnet-4"}
	if !matchesSearch(span, &req) {
		t.Error("resolved model in allow-list should match")
	}

	req.Model = []string{"claude-sonnet-4"}
	if matchesSearch(span, &req) {
		t.Error("resolved model outside allow-list should not match")
	}

	req.Model = nil
	req.Provider = []string{"anthropic"}
	if matchesSearch(span, &req) {
		t.Error("resolved provider outside allow-list should not match")
	}
}

func TestMatchesSearch_RootSpansOnly(t *testing.T) {
	root := testSpan("root", 1_000, nil)
	child := testSpan("child", 1_000, nil)
	child.ParentSpanID = "span-root"

	req := queryWindow
	req.RootSpansOnly = true

	if !matchesSearch(root, &req) {
		t.Error("parentless span should pass rootSpansOnly")
	}
	if matchesSearch(child, &req) {
		t.Error("child span should fail rootSpansOnly")
	}
}

func TestSortSpans(t *testing.T) {
	a := testSpan("a", 3_000, nil)
	b := testSpan("b", 1_000, nil)
	c := testSpan("c", 2_000, nil)
	noStart := &CachedSpan{Span: Span{TraceID: "t", SpanID: "span-d", Name: "d"}}

	t.Run("start time desc default", func(t *testing.T) {
		spans := []*CachedSpan{b, noStart, a, c}
		sortSpans(spans, SortByStartTime, "")
		got := []string{spans[0].Name, spans[1].Name, spans[2].Name, spans[3].Name}
		want := []string{"a", "c", "b", "d"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}
	})

	t.Run("start time asc keeps missing last", func(t *testing.T) {
		spans := []*CachedSpan{noStart, a, b, c}
		sortSpans(spans, SortByStartTime, SortOrderAsc)
		got := []string{spans[0].Name, spans[1].Name, spans[2].Name, spans[3].Name}
		want := []string{"b", "c", "a", "d"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}
	})

	t.Run("total tokens desc", func(t *testing.T) {
		low := testSpan("low", 1_000, AttrMap{"mirascope.response.usage": map[string]any{"total_tokens": float64(10)}})
		high := testSpan("high", 1_000, AttrMap{"mirascope.response.usage": map[string]any{"total_tokens": float64(90)}})
		none := testSpan("none", 1_000, nil)

		spans := []*CachedSpan{none, low, high}
		sortSpans(spans, SortByTotalTokens, SortOrderDesc)
		got := []string{spans[0].Name, spans[1].Name, spans[2].Name}
		want := []string{"high", "low", "none"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}
	})

	t.Run("duration", func(t *testing.T) {
		short := testSpan("short", 1_000, nil)
		short.EndTimeUnixNano = 2_000
		long := testSpan("long", 1_000, nil)
		long.EndTimeUnixNano = 9_000
		open := testSpan("open", 1_000, nil)

		spans := []*CachedSpan{open, short, long}
		sortSpans(spans, SortByDurationMs, SortOrderAsc)
		got := []string{spans[0].Name, spans[1].Name, spans[2].Name}
		want := []string{"short", "long", "open"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("order = %v, want %v", got, want)
			}
		}
	})
}

func TestSummarize(t *testing.T) {
	span := testSpan("chat.completion", UnixNano(time.Unix(100, 500_000).UnixNano()), AttrMap{
		"gen_ai.request.model": "gpt-4o",
		"gen_ai.system":        "openai",
		"mirascope.response.usage": map[string]any{
			"input_tokens":  float64(20),
			"output_tokens": float64(5),
			"total_tokens":  float64(25),
		},
		"mirascope.response.cost": map[string]any{"total_cost": float64(500)},
		"mirascope.version.uuid":  "fn-uuid",
		"mirascope.version.name":  "answer_question",
	})
	span.EndTimeUnixNano = span.StartTimeUnixNano + UnixNano(50*time.Millisecond)

	got := summarize(span)

	if got.TraceID != "trace-1" || got.SpanID != "span-chat.completion" {
		t.Errorf("identity = (%q, %q)", got.TraceID, got.SpanID)
	}
	if got.StartTimeMs == nil || *got.StartTimeMs != time.Unix(100, 500_000).UnixNano()/int64(time.Millisecond) {
		t.Errorf("StartTimeMs = %v, want millisecond projection of start", got.StartTimeMs)
	}
	if got.DurationMs == nil || *got.DurationMs != 50 {
		t.Errorf("DurationMs = %v, want 50", got.DurationMs)
	}
	if got.Model != "gpt-4o" || got.Provider != "openai" {
		t.Errorf("model/provider = (%q, %q)", got.Model, got.Provider)
	}
	if got.TotalTokens == nil || *got.TotalTokens != 25 {
		t.Errorf("TotalTokens = %v, want 25", got.TotalTokens)
	}
	if got.Cost == nil || *got.Cost != 0.05 {
		t.Errorf("Cost = %v, want 0.05", got.Cost)
	}
	if got.FunctionID != "fn-uuid" || got.FunctionName != "answer_question" {
		t.Errorf("function = (%q, %q)", got.FunctionID, got.FunctionName)
	}
	if got.HasChildren {
		t.Error("HasChildren must always be false")
	}

	bare := summarize(&CachedSpan{Span: Span{TraceID: "t", SpanID: "s"}})
	if bare.StartTimeMs != nil || bare.DurationMs != nil || bare.TotalTokens != nil {
		t.Errorf("bare span projected values = %+v, want all nil", bare)
	}
}
