package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mirascope/spancache/cli/internal/output"
	"github.com/Mirascope/spancache/services/spancache"
)

var traceCmd = &cobra.Command{
	Use:   "trace <trace-id>",
	Short: "Fetch a reconstructed trace",
	Long:  "Fetches every cached span of a trace, ordered by start time.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Environment == "" {
			return fmt.Errorf("an environment is required (--env or SPANCACHE_ENVIRONMENT)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		path := fmt.Sprintf("/v1/traces/%s?environment=%s",
			url.PathEscape(args[0]), url.QueryEscape(cfg.Environment))

		var trace spancache.TraceDetail
		if err := doJSON(ctx, http.MethodGet, path, nil, &trace); err != nil {
			return fmt.Errorf("failed to get trace: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(trace)
		}

		// Print trace details in a human-readable format
		output.Info("Trace ID: %s", trace.TraceID)
		if trace.RootSpanID != nil {
			output.Info("Root Span: %s", *trace.RootSpanID)
		}
		if trace.TotalDurationMs != nil {
			output.Info("Duration: %.1fms", *trace.TotalDurationMs)
		}

		if len(trace.Spans) > 0 {
			output.Info("\nSpans (%d):", len(trace.Spans))
			for _, s := range trace.Spans {
				spanID := s.SpanID
				if len(spanID) > 8 {
					spanID = spanID[:8]
				}
				duration := ""
				if s.DurationMs != nil {
					duration = fmt.Sprintf("%.1fms", *s.DurationMs)
				}
				status := "ok"
				if s.StatusCode != nil && *s.StatusCode == spancache.StatusError {
					status = "error"
				}
				name := s.Name
				if s.Model != "" {
					name = fmt.Sprintf("%s [%s]", name, s.Model)
				}
				output.Info("  [%s] %s (%s) - %s", spanID, name, duration, status)
			}
		}
		return nil
	},
}
