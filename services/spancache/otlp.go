package spancache

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"

	"google.golang.org/grpc"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/Mirascope/spancache/pkg/grpcutil"
)

// Resource attribute keys carrying the ingestion context.
const (
	resourceEnvironmentID  = "mirascope.environment_id"
	resourceProjectID      = "mirascope.project_id"
	resourceOrganizationID = "mirascope.organization_id"
	resourceServiceName    = "service.name"
	resourceServiceVersion = "service.version"
)

// OTLPServer accepts span batches over the OTLP/gRPC trace service and
// feeds them into the cache.
type OTLPServer struct {
	coltracepb.UnimplementedTraceServiceServer
	svc    *Service
	logger *slog.Logger
}

// NewOTLPServer creates a new OTLP ingest server around the cache
// service.
func NewOTLPServer(svc *Service, logger *slog.Logger) *OTLPServer {
	return &OTLPServer{
		svc:    svc,
		logger: logger.With("component", "otlp"),
	}
}

// Register registers the trace service with a gRPC server.
func (s *OTLPServer) Register(g *grpc.Server) {
	coltracepb.RegisterTraceServiceServer(g, s)
}

// Export ingests one OTLP export request. Each resource-spans block
// becomes one cache batch with its own ingestion context.
func (s *OTLPServer) Export(
	ctx context.Context,
	req *coltracepb.ExportTraceServiceRequest,
) (*coltracepb.ExportTraceServiceResponse, error) {
	for _, rs := range req.ResourceSpans {
		batch := batchFromResourceSpans(rs)
		if len(batch.Spans) == 0 {
			continue
		}
		if err := s.svc.Ingest(ctx, batch); err != nil {
			if errors.Is(err, ErrMissingSpanIdentity) {
				return nil, grpcutil.InvalidArgumentError("span", err.Error())
			}
			if errors.Is(err, ErrMissingEnvironment) {
				return nil, grpcutil.InvalidArgumentError("resource", err.Error())
			}
			s.logger.ErrorContext(ctx, "failed to ingest OTLP batch",
				"environment", batch.EnvironmentID,
				"spans", len(batch.Spans),
				"error", err,
			)
			return nil, grpcutil.WrapError(err, "ingest failed")
		}
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

func batchFromResourceSpans(rs *tracepb.ResourceSpans) *IngestBatch {
	batch := &IngestBatch{}
	if rs.Resource != nil {
		attrs := attrMapFromKeyValues(rs.Resource.Attributes)
		batch.ResourceAttributes = attrs
		batch.EnvironmentID, _ = attrString(attrs[resourceEnvironmentID])
		batch.ProjectID, _ = attrString(attrs[resourceProjectID])
		batch.OrganizationID, _ = attrString(attrs[resourceOrganizationID])
		batch.ServiceName, _ = attrString(attrs[resourceServiceName])
		batch.ServiceVersion, _ = attrString(attrs[resourceServiceVersion])
	}

	for _, scope := range rs.ScopeSpans {
		for _, span := range scope.Spans {
			batch.Spans = append(batch.Spans, spanFromProto(span))
		}
	}
	return batch
}

func spanFromProto(span *tracepb.Span) Span {
	out := Span{
		TraceID:                hex.EncodeToString(span.TraceId),
		SpanID:                 hex.EncodeToString(span.SpanId),
		Name:                   span.Name,
		Kind:                   kindString(span.Kind),
		StartTimeUnixNano:      UnixNano(span.StartTimeUnixNano),
		EndTimeUnixNano:        UnixNano(span.EndTimeUnixNano),
		Attributes:             attrMapFromKeyValues(span.Attributes),
		DroppedAttributesCount: span.DroppedAttributesCount,
		DroppedEventsCount:     span.DroppedEventsCount,
		DroppedLinksCount:      span.DroppedLinksCount,
	}
	if len(span.ParentSpanId) > 0 {
		out.ParentSpanID = hex.EncodeToString(span.ParentSpanId)
	}
	if span.Status != nil {
		out.Status = &SpanStatus{
			Code:    StatusCode(span.Status.Code),
			Message: span.Status.Message,
		}
	}
	for _, event := range span.Events {
		out.Events = append(out.Events, SpanEvent{
			Name:                   event.Name,
			TimeUnixNano:           UnixNano(event.TimeUnixNano),
			Attributes:             attrMapFromKeyValues(event.Attributes),
			DroppedAttributesCount: event.DroppedAttributesCount,
		})
	}
	for _, link := range span.Links {
		out.Links = append(out.Links, SpanLink{
			TraceID:                hex.EncodeToString(link.TraceId),
			SpanID:                 hex.EncodeToString(link.SpanId),
			Attributes:             attrMapFromKeyValues(link.Attributes),
			DroppedAttributesCount: link.DroppedAttributesCount,
		})
	}
	return out
}

func kindString(kind tracepb.Span_SpanKind) string {
	switch kind {
	case tracepb.Span_SPAN_KIND_INTERNAL:
		return "internal"
	case tracepb.Span_SPAN_KIND_SERVER:
		return "server"
	case tracepb.Span_SPAN_KIND_CLIENT:
		return "client"
	case tracepb.Span_SPAN_KIND_PRODUCER:
		return "producer"
	case tracepb.Span_SPAN_KIND_CONSUMER:
		return "consumer"
	default:
		return ""
	}
}

func attrMapFromKeyValues(kvs []*commonpb.KeyValue) AttrMap {
	if len(kvs) == 0 {
		return nil
	}
	attrs := make(AttrMap, len(kvs))
	for _, kv := range kvs {
		attrs[kv.Key] = anyValueToGo(kv.Value)
	}
	return attrs
}

// anyValueToGo maps an OTLP AnyValue to the JSON-typed values the
// attribute map holds.
func anyValueToGo(v *commonpb.AnyValue) any {
	if v == nil {
		return nil
	}
	switch val := v.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return float64(val.IntValue)
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_ArrayValue:
		items := make([]any, 0, len(val.ArrayValue.Values))
		for _, item := range val.ArrayValue.Values {
			items = append(items, anyValueToGo(item))
		}
		return items
	case *commonpb.AnyValue_KvlistValue:
		return map[string]any(attrMapFromKeyValues(val.KvlistValue.Values))
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(val.BytesValue)
	default:
		return nil
	}
}
