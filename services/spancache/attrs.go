package spancache

import (
	"encoding/json"
	"strconv"
	"time"
)

// Attribute resolution: pure projections over a span's free-form
// attribute map. Each semantic field is derived through a prioritized
// fallback chain of keys, with the framework-specific key checked
// before the generic GenAI semantic-convention one. Values may arrive
// as JSON scalars or as JSON-encoded object strings; every access
// type-checks explicitly and resolves to "absent" on mismatch.

const (
	attrResponseModelID  = "mirascope.response.model_id"
	attrResponseModel    = "gen_ai.response.model"
	attrRequestModel     = "gen_ai.request.model"
	attrProviderID       = "mirascope.response.provider_id"
	attrProviderName     = "gen_ai.provider.name"
	attrSystem           = "gen_ai.system"
	attrResponseUsage    = "mirascope.response.usage"
	attrInputTokens      = "gen_ai.usage.input_tokens"
	attrOutputTokens     = "gen_ai.usage.output_tokens"
	attrResponseCost     = "mirascope.response.cost"
	attrUsageCost        = "gen_ai.usage.cost"
	attrVersionUUID      = "mirascope.version.uuid"
	attrVersionName      = "mirascope.version.name"
	attrVersionNumber    = "mirascope.version.version"
	attrFnQualname       = "mirascope.fn.qualname"
	attrErrorType        = "error.type"
	attrErrorMessage     = "error.message"
	attrInputMessages    = "gen_ai.input_messages"
	attrResponseMessages = "mirascope.response.messages"
	attrSystemInstr      = "gen_ai.system_instructions"
	attrOutputMessages   = "gen_ai.output_messages"
	attrResponseContent  = "mirascope.response.content"
	attrTraceOutput      = "mirascope.trace.output"
)

// inputMessageKeys and outputMessageKeys are the prioritized attribute
// sets searched by the message substring predicates.
var (
	inputMessageKeys  = []string{attrInputMessages, attrResponseMessages, attrSystemInstr}
	outputMessageKeys = []string{attrOutputMessages, attrResponseContent, attrTraceOutput}
)

// centicentsPerUSD converts the framework cost unit (1/100 of a cent)
// to dollars.
const centicentsPerUSD = 10_000

func resolveModel(attrs AttrMap) (string, bool) {
	return firstString(attrs, attrResponseModelID, attrResponseModel, attrRequestModel)
}

func resolveProvider(attrs AttrMap) (string, bool) {
	return firstString(attrs, attrProviderID, attrProviderName, attrSystem)
}

func resolveInputTokens(attrs AttrMap) (int64, bool) {
	if v, ok := usageField(attrs, "input_tokens"); ok {
		return v, true
	}
	return attrInt(attrs[attrInputTokens])
}

func resolveOutputTokens(attrs AttrMap) (int64, bool) {
	if v, ok := usageField(attrs, "output_tokens"); ok {
		return v, true
	}
	return attrInt(attrs[attrOutputTokens])
}

// resolveTotalTokens prefers the recorded total and only then falls
// back to summing input and output, which requires both to resolve.
func resolveTotalTokens(attrs AttrMap) (int64, bool) {
	if v, ok := usageField(attrs, "total_tokens"); ok {
		return v, true
	}
	in, inOK := resolveInputTokens(attrs)
	out, outOK := resolveOutputTokens(attrs)
	if inOK && outOK {
		return in + out, true
	}
	return 0, false
}

// resolveCostUSD normalizes cost to dollars: the framework records
// centicents, the generic key already carries dollars.
func resolveCostUSD(attrs AttrMap) (float64, bool) {
	if obj, ok := attrObject(attrs[attrResponseCost]); ok {
		if v, ok := attrFloat(obj["total_cost"]); ok {
			return v / centicentsPerUSD, true
		}
	}
	if v, ok := attrFloat(attrs[attrUsageCost]); ok {
		return v, true
	}
	return 0, false
}

func resolveFunctionID(attrs AttrMap) (string, bool) {
	return attrString(attrs[attrVersionUUID])
}

func resolveFunctionName(attrs AttrMap) (string, bool) {
	return firstString(attrs, attrVersionName, attrFnQualname)
}

func resolveFunctionVersion(attrs AttrMap) (string, bool) {
	if v, ok := attrString(attrs[attrVersionNumber]); ok {
		return v, true
	}
	if v, ok := attrInt(attrs[attrVersionNumber]); ok {
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

func resolveErrorType(attrs AttrMap) (string, bool) {
	return attrString(attrs[attrErrorType])
}

func resolveErrorMessage(attrs AttrMap) (string, bool) {
	return attrString(attrs[attrErrorMessage])
}

// spanHasError reports whether the span failed: an error status code or
// a recorded error type.
func spanHasError(s *CachedSpan) bool {
	if s.Status != nil && s.Status.Code == StatusError {
		return true
	}
	_, ok := resolveErrorType(s.Attributes)
	return ok
}

// startTimeNanos returns the span's effective start time, falling back
// to the producer-reported ingestion time when the span carries none.
func startTimeNanos(s *CachedSpan) UnixNano {
	if !s.StartTimeUnixNano.IsZero() {
		return s.StartTimeUnixNano
	}
	if !s.ReceivedAt.IsZero() {
		return UnixNano(s.ReceivedAt.UnixNano())
	}
	return 0
}

// durationMillis computes the span duration in milliseconds when both
// endpoints are present.
func durationMillis(s *CachedSpan) (float64, bool) {
	if s.StartTimeUnixNano.IsZero() || s.EndTimeUnixNano.IsZero() {
		return 0, false
	}
	d := int64(s.EndTimeUnixNano) - int64(s.StartTimeUnixNano)
	return float64(d) / float64(time.Millisecond), true
}

// firstString walks a fallback chain and returns the first non-empty
// string value.
func firstString(attrs AttrMap, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := attrString(attrs[key]); ok {
			return v, true
		}
	}
	return "", false
}

// usageField reads a numeric field from the framework usage object,
// which may be stored inline or as a JSON-encoded string.
func usageField(attrs AttrMap, field string) (int64, bool) {
	obj, ok := attrObject(attrs[attrResponseUsage])
	if !ok {
		return 0, false
	}
	return attrInt(obj[field])
}

func attrString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func attrFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func attrInt(v any) (int64, bool) {
	f, ok := attrFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// attrObject interprets a value as a JSON object, decoding it first
// when it arrives as an encoded string.
func attrObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(obj), &decoded); err != nil {
			return nil, false
		}
		return decoded, true
	default:
		return nil, false
	}
}

// attrScalarString renders a scalar attribute value for the generic
// attribute-filter operators. Non-scalar values do not participate.
func attrScalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
