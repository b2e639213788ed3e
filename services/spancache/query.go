package spancache

import (
	"sort"
	"strings"
	"time"
)

// Sort fields and directions accepted by Search.
const (
	SortByStartTime   = "start_time"
	SortByDurationMs  = "duration_ms"
	SortByTotalTokens = "total_tokens"

	SortOrderAsc  = "asc"
	SortOrderDesc = "desc"
)

// Attribute filter operators.
const (
	AttrFilterEq       = "eq"
	AttrFilterNeq      = "neq"
	AttrFilterContains = "contains"
	AttrFilterExists   = "exists"
)

// AttributeFilter is a generic predicate evaluated against the raw
// attribute map.
type AttributeFilter struct {
	Key      string `json:"key"`
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
}

// SearchRequest carries the required time range plus optional
// predicates. Absent predicates are no-ops; supplied predicates are
// ANDed.
type SearchRequest struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	Query               string            `json:"query,omitempty"`
	TraceID             string            `json:"traceId,omitempty"`
	SpanID              string            `json:"spanId,omitempty"`
	Model               []string          `json:"model,omitempty"`
	Provider            []string          `json:"provider,omitempty"`
	FunctionID          string            `json:"functionId,omitempty"`
	FunctionName        string            `json:"functionName,omitempty"`
	SpanNamePrefix      string            `json:"spanNamePrefix,omitempty"`
	HasError            *bool             `json:"hasError,omitempty"`
	MinTokens           *int64            `json:"minTokens,omitempty"`
	MaxTokens           *int64            `json:"maxTokens,omitempty"`
	MinDurationMs       *float64          `json:"minDuration,omitempty"`
	MaxDurationMs       *float64          `json:"maxDuration,omitempty"`
	AttributeFilters    []AttributeFilter `json:"attributeFilters,omitempty"`
	InputMessagesQuery  string            `json:"inputMessagesQuery,omitempty"`
	OutputMessagesQuery string            `json:"outputMessagesQuery,omitempty"`
	RootSpansOnly       bool              `json:"rootSpansOnly,omitempty"`

	SortBy    string `json:"sortBy,omitempty"`
	SortOrder string `json:"sortOrder,omitempty"`
}

// SummarySpan is the search projection of a cached span.
type SummarySpan struct {
	TraceID      string   `json:"traceId"`
	SpanID       string   `json:"spanId"`
	Name         string   `json:"name"`
	StartTimeMs  *int64   `json:"startTimeMs"`
	DurationMs   *float64 `json:"durationMs"`
	Model        string   `json:"model,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	InputTokens  *int64   `json:"inputTokens,omitempty"`
	OutputTokens *int64   `json:"outputTokens,omitempty"`
	TotalTokens  *int64   `json:"totalTokens,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
	FunctionID   string   `json:"functionId,omitempty"`
	FunctionName string   `json:"functionName,omitempty"`

	// HasChildren cannot be computed accurately from a bounded cache
	// window, so it is always reported false.
	HasChildren bool `json:"hasChildren"`
}

// SearchResult is the response shape of Search. HasMore is always
// false: this is a bounded recent-window cache, not a paged index.
type SearchResult struct {
	Spans   []SummarySpan `json:"spans"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
}

// matchesSearch evaluates every supplied predicate against one cached
// span.
func matchesSearch(s *CachedSpan, req *SearchRequest) bool {
	start := startTimeNanos(s)
	if start.IsZero() {
		return false
	}
	t := start.Time()
	if t.Before(req.StartTime) || t.After(req.EndTime) {
		return false
	}

	if req.TraceID != "" && s.TraceID != req.TraceID {
		return false
	}
	if req.SpanID != "" && s.SpanID != req.SpanID {
		return false
	}
	if req.Query != "" && !matchesNameTokens(s.Name, req.Query) {
		return false
	}
	if req.InputMessagesQuery != "" && !matchesMessages(s.Attributes, inputMessageKeys, req.InputMessagesQuery) {
		return false
	}
	if req.OutputMessagesQuery != "" && !matchesMessages(s.Attributes, outputMessageKeys, req.OutputMessagesQuery) {
		return false
	}
	if len(req.Model) > 0 {
		model, ok := resolveModel(s.Attributes)
		if !ok || !containsString(req.Model, model) {
			return false
		}
	}
	if len(req.Provider) > 0 {
		provider, ok := resolveProvider(s.Attributes)
		if !ok || !containsString(req.Provider, provider) {
			return false
		}
	}
	if req.FunctionID != "" {
		id, ok := resolveFunctionID(s.Attributes)
		if !ok || id != req.FunctionID {
			return false
		}
	}
	if req.FunctionName != "" {
		name, ok := resolveFunctionName(s.Attributes)
		if !ok || name != req.FunctionName {
			return false
		}
	}
	if req.SpanNamePrefix != "" && !matchesNamePrefix(s.Name, req.SpanNamePrefix) {
		return false
	}
	if req.HasError != nil && spanHasError(s) != *req.HasError {
		return false
	}
	if req.MinTokens != nil || req.MaxTokens != nil {
		tokens, ok := resolveTotalTokens(s.Attributes)
		if !ok {
			return false
		}
		if req.MinTokens != nil && tokens < *req.MinTokens {
			return false
		}
		if req.MaxTokens != nil && tokens > *req.MaxTokens {
			return false
		}
	}
	if req.MinDurationMs != nil || req.MaxDurationMs != nil {
		dur, ok := durationMillis(s)
		if !ok {
			return false
		}
		if req.MinDurationMs != nil && dur < *req.MinDurationMs {
			return false
		}
		if req.MaxDurationMs != nil && dur > *req.MaxDurationMs {
			return false
		}
	}
	for _, filter := range req.AttributeFilters {
		if !matchesAttributeFilter(s.Attributes, filter) {
			return false
		}
	}
	if req.RootSpansOnly && s.ParentSpanID != "" {
		return false
	}

	return true
}

// matchesNameTokens lower-cases the query, splits it into alphanumeric
// tokens, and requires every token to appear as a substring of the
// span name.
func matchesNameTokens(name, query string) bool {
	lowerName := strings.ToLower(name)
	for _, token := range tokenize(query) {
		if !strings.Contains(lowerName, token) {
			return false
		}
	}
	return true
}

func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

// matchesMessages checks a case-insensitive substring against the first
// present key of a prioritized attribute set.
func matchesMessages(attrs AttrMap, keys []string, query string) bool {
	lowered := strings.ToLower(query)
	for _, key := range keys {
		value, ok := attrString(attrs[key])
		if !ok {
			continue
		}
		return strings.Contains(strings.ToLower(value), lowered)
	}
	return false
}

// matchesNamePrefix matches either the exact name or a dotted suffix
// under the prefix ("chat" matches "chat" and "chat.completion", not
// "chatter").
func matchesNamePrefix(name, prefix string) bool {
	return name == prefix || strings.HasPrefix(name, prefix+".")
}

func matchesAttributeFilter(attrs AttrMap, filter AttributeFilter) bool {
	raw, present := attrs[filter.Key]
	if raw == nil {
		present = false
	}

	switch filter.Operator {
	case AttrFilterExists:
		return present
	case AttrFilterNeq:
		if !present {
			return true
		}
		value, ok := attrScalarString(raw)
		return !ok || value != filter.Value
	case AttrFilterEq:
		if !present {
			return false
		}
		value, ok := attrScalarString(raw)
		return ok && value == filter.Value
	case AttrFilterContains:
		if !present {
			return false
		}
		value, ok := attrScalarString(raw)
		return ok && strings.Contains(value, filter.Value)
	default:
		return false
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// summarize projects a cached span to its search summary shape.
// Timestamps drop to millisecond resolution here, at the projection
// boundary only.
func summarize(s *CachedSpan) SummarySpan {
	out := SummarySpan{
		TraceID:     s.TraceID,
		SpanID:      s.SpanID,
		Name:        s.Name,
		HasChildren: false,
	}

	if start := startTimeNanos(s); !start.IsZero() {
		ms := start.Millis()
		out.StartTimeMs = &ms
	}
	if dur, ok := durationMillis(s); ok {
		out.DurationMs = &dur
	}
	if model, ok := resolveModel(s.Attributes); ok {
		out.Model = model
	}
	if provider, ok := resolveProvider(s.Attributes); ok {
		out.Provider = provider
	}
	if tokens, ok := resolveInputTokens(s.Attributes); ok {
		out.InputTokens = &tokens
	}
	if tokens, ok := resolveOutputTokens(s.Attributes); ok {
		out.OutputTokens = &tokens
	}
	if tokens, ok := resolveTotalTokens(s.Attributes); ok {
		out.TotalTokens = &tokens
	}
	if cost, ok := resolveCostUSD(s.Attributes); ok {
		out.Cost = &cost
	}
	if id, ok := resolveFunctionID(s.Attributes); ok {
		out.FunctionID = id
	}
	if name, ok := resolveFunctionName(s.Attributes); ok {
		out.FunctionName = name
	}

	return out
}

// sortSpans orders the filtered set by the requested field. Spans with
// no value for the sort field go last regardless of direction: missing
// behaves as the direction's losing extreme, never as zero.
func sortSpans(spans []*CachedSpan, sortBy, sortOrder string) {
	key := sortKeyFunc(sortBy)
	desc := sortOrder != SortOrderAsc

	sort.SliceStable(spans, func(i, j int) bool {
		av, aok := key(spans[i])
		bv, bok := key(spans[j])
		if aok != bok {
			return aok
		}
		if !aok {
			return false
		}
		if desc {
			return av > bv
		}
		return av < bv
	})
}

// sortKeyFunc keeps comparison keys in int64 nanoseconds/counts so
// nanosecond ordering is never rounded away.
func sortKeyFunc(sortBy string) func(*CachedSpan) (int64, bool) {
	switch sortBy {
	case SortByDurationMs:
		return func(s *CachedSpan) (int64, bool) {
			if s.StartTimeUnixNano.IsZero() || s.EndTimeUnixNano.IsZero() {
				return 0, false
			}
			return int64(s.EndTimeUnixNano) - int64(s.StartTimeUnixNano), true
		}
	case SortByTotalTokens:
		return func(s *CachedSpan) (int64, bool) {
			return resolveTotalTokens(s.Attributes)
		}
	default:
		return func(s *CachedSpan) (int64, bool) {
			start := startTimeNanos(s)
			return int64(start), !start.IsZero()
		}
	}
}
