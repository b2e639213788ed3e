package spancache

// mergeSpans combines an existing cached span with an incoming update
// for the same (traceId, spanId). The policy keeps the earliest start
// and latest end, and prefers non-empty incoming fields with fallback
// to existing, which makes the merge commutative for the common
// start-event/finalize-event pair and idempotent under duplicate
// delivery. It is pure: no I/O, no failure mode.
func mergeSpans(existing *CachedSpan, incoming CachedSpan) CachedSpan {
	if existing == nil {
		return incoming
	}

	merged := incoming

	merged.StartTimeUnixNano = minTime(existing.StartTimeUnixNano, incoming.StartTimeUnixNano)
	merged.EndTimeUnixNano = maxTime(existing.EndTimeUnixNano, incoming.EndTimeUnixNano)

	// A later partial update with fewer fields must not erase earlier
	// detail.
	if len(incoming.Attributes) == 0 {
		merged.Attributes = existing.Attributes
	}
	if len(incoming.Events) == 0 {
		merged.Events = existing.Events
	}
	if len(incoming.Links) == 0 {
		merged.Links = existing.Links
	}

	// An explicitly present status wins, even an explicit "no status".
	if incoming.Status == nil {
		merged.Status = existing.Status
	}

	if incoming.ParentSpanID == "" {
		merged.ParentSpanID = existing.ParentSpanID
	}
	if incoming.Name == "" {
		merged.Name = existing.Name
	}
	if incoming.Kind == "" {
		merged.Kind = existing.Kind
	}
	if incoming.ServiceName == "" {
		merged.ServiceName = existing.ServiceName
	}
	if incoming.ServiceVersion == "" {
		merged.ServiceVersion = existing.ServiceVersion
	}
	if len(incoming.ResourceAttributes) == 0 {
		merged.ResourceAttributes = existing.ResourceAttributes
	}
	if incoming.EnvironmentID == "" {
		merged.EnvironmentID = existing.EnvironmentID
	}
	if incoming.ProjectID == "" {
		merged.ProjectID = existing.ProjectID
	}
	if incoming.OrganizationID == "" {
		merged.OrganizationID = existing.OrganizationID
	}
	if incoming.ReceivedAt.IsZero() {
		merged.ReceivedAt = existing.ReceivedAt
	}

	return merged
}

// minTime returns the earlier of two nanosecond timestamps; an unset
// value defers to the other side.
func minTime(a, b UnixNano) UnixNano {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// maxTime returns the later of two nanosecond timestamps; an unset
// value defers to the other side.
func maxTime(a, b UnixNano) UnixNano {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a > b:
		return a
	default:
		return b
	}
}
