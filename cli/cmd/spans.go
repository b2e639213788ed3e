package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mirascope/spancache/cli/internal/output"
	"github.com/Mirascope/spancache/services/spancache"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search cached spans",
	Long:  "Searches spans in one environment partition over a time window.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Environment == "" {
			return fmt.Errorf("an environment is required (--env or SPANCACHE_ENVIRONMENT)")
		}

		since, _ := cmd.Flags().GetDuration("since")
		query, _ := cmd.Flags().GetString("query")
		inputQuery, _ := cmd.Flags().GetString("input-query")
		outputQuery, _ := cmd.Flags().GetString("output-query")
		models, _ := cmd.Flags().GetStringSlice("model")
		providers, _ := cmd.Flags().GetStringSlice("provider")
		rootOnly, _ := cmd.Flags().GetBool("root-only")
		errorsOnly, _ := cmd.Flags().GetBool("errors-only")
		sortBy, _ := cmd.Flags().GetString("sort")
		sortOrder, _ := cmd.Flags().GetString("order")

		now := time.Now().UTC()
		sr := spancache.SearchRequest{
			StartTime:           now.Add(-since),
			EndTime:             now,
			Query:               query,
			InputMessagesQuery:  inputQuery,
			OutputMessagesQuery: outputQuery,
			Model:               models,
			Provider:            providers,
			RootSpansOnly:       rootOnly,
			SortBy:              sortBy,
			SortOrder:           sortOrder,
		}
		if errorsOnly {
			hasError := true
			sr.HasError = &hasError
		}

		req := struct {
			EnvironmentID string `json:"environmentId"`
			spancache.SearchRequest
		}{EnvironmentID: cfg.Environment, SearchRequest: sr}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var result spancache.SearchResult
		if err := doJSON(ctx, http.MethodPost, "/v1/spans/search", req, &result); err != nil {
			return fmt.Errorf("failed to search spans: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(result.Spans)
		}

		table := output.Table{
			Headers: []string{"TRACE ID", "SPAN ID", "NAME", "MODEL", "DURATION", "TOKENS", "TIME"},
			Rows:    make([][]string, len(result.Spans)),
		}
		for i, s := range result.Spans {
			traceID := s.TraceID
			if len(traceID) > 16 {
				traceID = traceID[:16]
			}
			started := ""
			if s.StartTimeMs != nil {
				started = time.UnixMilli(*s.StartTimeMs).UTC().Format("15:04:05")
			}
			duration := ""
			if s.DurationMs != nil {
				duration = fmt.Sprintf("%.1fms", *s.DurationMs)
			}
			tokens := ""
			if s.TotalTokens != nil {
				tokens = fmt.Sprintf("%d", *s.TotalTokens)
			}
			table.Rows[i] = []string{
				traceID,
				s.SpanID,
				s.Name,
				s.Model,
				duration,
				tokens,
				started,
			}
		}

		w := output.NewWriter("table")
		if err := w.Print(table); err != nil {
			return err
		}
		if cfg.Verbose {
			output.Info("%d span(s) matched", result.Total)
		}
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists <trace-id> <span-id>",
	Short: "Check whether a span is still cached",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Environment == "" {
			return fmt.Errorf("an environment is required (--env or SPANCACHE_ENVIRONMENT)")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		path := fmt.Sprintf("/v1/spans/%s/%s/exists?environment=%s",
			url.PathEscape(args[0]), url.PathEscape(args[1]), url.QueryEscape(cfg.Environment))

		var result struct {
			Exists bool `json:"exists"`
		}
		if err := doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
			return fmt.Errorf("failed to check span: %w", err)
		}

		if cfg.Format == "json" || cfg.Format == "yaml" {
			w := output.NewWriter(cfg.Format)
			return w.Print(result)
		}

		if result.Exists {
			output.Success("span %s is cached", args[1])
		} else {
			output.Info("span %s is not cached", args[1])
		}
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <batch-file>",
	Short: "Ingest a span batch from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}

		var batch spancache.IngestBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("invalid batch file: %w", err)
		}
		if batch.EnvironmentID == "" {
			batch.EnvironmentID = cfg.Environment
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := doJSON(ctx, http.MethodPost, "/v1/spans", batch, nil); err != nil {
			return fmt.Errorf("failed to ingest batch: %w", err)
		}

		output.Success("ingested %d span(s) into %s", len(batch.Spans), batch.EnvironmentID)
		return nil
	},
}

func init() {
	searchCmd.Flags().Duration("since", time.Hour, "How far back to search")
	searchCmd.Flags().String("query", "", "Token match against span names")
	searchCmd.Flags().String("input-query", "", "Substring match against input messages")
	searchCmd.Flags().String("output-query", "", "Substring match against output messages")
	searchCmd.Flags().StringSlice("model", nil, "Restrict to these models")
	searchCmd.Flags().StringSlice("provider", nil, "Restrict to these providers")
	searchCmd.Flags().Bool("root-only", false, "Only return root spans")
	searchCmd.Flags().Bool("errors-only", false, "Only return spans with errors")
	searchCmd.Flags().String("sort", "", "Sort field (start_time, duration_ms, total_tokens)")
	searchCmd.Flags().String("order", "", "Sort order (asc, desc)")
}
