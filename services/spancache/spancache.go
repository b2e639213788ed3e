// Package spancache provides a short-lived cache for streamed telemetry
// spans with an embedded query engine. Partial, out-of-order updates to
// the same span are merged on write; records live for a bounded
// time-and-size budget and can be searched or reassembled into traces
// while they remain in the window.
package spancache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cache tunables. Structural behavior does not depend on the exact
// values.
const (
	DefaultTTL      = 10 * time.Minute
	DefaultMaxItems = 50_000
	DefaultMaxBytes = 32 * 1024 * 1024
)

// Config holds the retention tunables for one cache instance.
type Config struct {
	TTL      time.Duration
	MaxItems int
	MaxBytes int64
}

// DefaultConfig returns the stock retention budget.
func DefaultConfig() Config {
	return Config{
		TTL:      DefaultTTL,
		MaxItems: DefaultMaxItems,
		MaxBytes: DefaultMaxBytes,
	}
}

// AttrMap is an open, string-keyed attribute map with JSON-typed values
// (string, float64, bool, nil, []any, map[string]any). Consumers
// type-check at the point of use.
type AttrMap map[string]any

// UnixNano is a nanosecond-precision Unix timestamp. Zero means unset.
// It crosses serialization boundaries as a numeric string so that
// nanosecond precision survives JSON number handling.
type UnixNano int64

// IsZero reports whether the timestamp is unset.
func (n UnixNano) IsZero() bool { return n == 0 }

// Time converts to wall-clock time.
func (n UnixNano) Time() time.Time { return time.Unix(0, int64(n)) }

// Millis converts to millisecond resolution, for projection output
// only. Internal comparisons always stay in nanoseconds.
func (n UnixNano) Millis() int64 { return int64(n) / int64(time.Millisecond) }

func (n UnixNano) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(n), 10) + `"`), nil
}

func (n *UnixNano) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid nanosecond timestamp %q: %w", s, err)
	}
	*n = UnixNano(v)
	return nil
}

// StatusCode mirrors the OTLP span status code values.
type StatusCode int32

const (
	StatusUnset StatusCode = 0
	StatusOK    StatusCode = 1
	StatusError StatusCode = 2
)

// SpanStatus is a span's status. A present-but-unset status is
// distinguishable from an absent one, which matters to the merge rules.
type SpanStatus struct {
	Code    StatusCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// SpanEvent is a timestamped event recorded on a span.
type SpanEvent struct {
	Name                   string   `json:"name"`
	TimeUnixNano           UnixNano `json:"timeUnixNano,omitempty"`
	Attributes             AttrMap  `json:"attributes,omitempty"`
	DroppedAttributesCount uint32   `json:"droppedAttributesCount,omitempty"`
}

// SpanLink is a reference from a span to another span, possibly in a
// different trace.
type SpanLink struct {
	TraceID                string  `json:"traceId"`
	SpanID                 string  `json:"spanId"`
	Attributes             AttrMap `json:"attributes,omitempty"`
	DroppedAttributesCount uint32  `json:"droppedAttributesCount,omitempty"`
}

// Span is one timed unit of work in a distributed trace. (TraceID,
// SpanID) is its identity; an empty ParentSpanID marks a root span.
type Span struct {
	TraceID                string      `json:"traceId"`
	SpanID                 string      `json:"spanId"`
	ParentSpanID           string      `json:"parentSpanId,omitempty"`
	Name                   string      `json:"name,omitempty"`
	Kind                   string      `json:"kind,omitempty"`
	StartTimeUnixNano      UnixNano    `json:"startTimeUnixNano,omitempty"`
	EndTimeUnixNano        UnixNano    `json:"endTimeUnixNano,omitempty"`
	Attributes             AttrMap     `json:"attributes,omitempty"`
	Events                 []SpanEvent `json:"events,omitempty"`
	Links                  []SpanLink  `json:"links,omitempty"`
	Status                 *SpanStatus `json:"status,omitempty"`
	DroppedAttributesCount uint32      `json:"droppedAttributesCount,omitempty"`
	DroppedEventsCount     uint32      `json:"droppedEventsCount,omitempty"`
	DroppedLinksCount      uint32      `json:"droppedLinksCount,omitempty"`
}

// CachedSpan is a span plus the ingestion context it arrived with.
type CachedSpan struct {
	Span

	// ReceivedAt is the producer-reported ingestion time, used as the
	// start-time fallback when the span itself carries none.
	ReceivedAt time.Time `json:"receivedAt"`

	EnvironmentID      string  `json:"environmentId,omitempty"`
	ProjectID          string  `json:"projectId,omitempty"`
	OrganizationID     string  `json:"organizationId,omitempty"`
	ServiceName        string  `json:"serviceName,omitempty"`
	ServiceVersion     string  `json:"serviceVersion,omitempty"`
	ResourceAttributes AttrMap `json:"resourceAttributes,omitempty"`
}

// CacheRecord is the unit of storage: a merged span plus cache
// bookkeeping. ReceivedAt here is the cache write time, distinct from
// the span's own ReceivedAt, and is refreshed on every merge along with
// ExpiresAt (sliding expiration) and SizeBytes.
type CacheRecord struct {
	Span       CachedSpan `json:"span"`
	ReceivedAt time.Time  `json:"receivedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	SizeBytes  int64      `json:"sizeBytes"`
}

// Expired reports whether the record is logically absent at now.
func (r *CacheRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// IngestBatch is a batch of spans sharing common ingestion context.
type IngestBatch struct {
	EnvironmentID      string    `json:"environmentId"`
	ProjectID          string    `json:"projectId,omitempty"`
	OrganizationID     string    `json:"organizationId,omitempty"`
	ServiceName        string    `json:"serviceName,omitempty"`
	ServiceVersion     string    `json:"serviceVersion,omitempty"`
	ResourceAttributes AttrMap   `json:"resourceAttributes,omitempty"`
	ReceivedAt         time.Time `json:"receivedAt,omitzero"`
	Spans              []Span    `json:"spans"`
}

const spanKeyPrefix = "span:"

// spanKey derives the storage key for a span. The layout supports both
// a global scan ("span:") and a per-trace scan ("span:<traceId>:").
func spanKey(traceID, spanID string) string {
	return spanKeyPrefix + traceID + ":" + spanID
}

func traceKeyPrefix(traceID string) string {
	return spanKeyPrefix + traceID + ":"
}
