package main

import (
	"context"
	"os"

	"github.com/fyrsmithlabs/metricsd/internal/metadata"
	"github.com/fyrsmithlabs/metricsd/internal/sanitize"
	"github.com/fyrsmithlabs/metricsd/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxIndexFileSize bounds metadata files read by the index command.
const maxIndexFileSize = 16 * 1024 * 1024

var searchLimit int

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(indexCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", metadata.DefaultSearchLimit, "maximum number of results (1-100)")
}

// searchCmd runs a semantic metadata search
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search metric metadata with a natural-language query",
	Long: `Search the metric metadata index and print matches ranked by
similarity, highest first.

Examples:
  metricsd search 'request latency'
  metricsd search --limit 3 'memory used by the heap'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

// indexCmd loads metric metadata from a file
var indexCmd = &cobra.Command{
	Use:   "index FILE",
	Short: "Index metric metadata from a YAML or JSON file",
	Long: `Read a list of metric metadata entries from FILE and store them in the
index. Existing entries with the same name are replaced. Every entry is
validated before anything is written.

Example file:
  - name: http.server.duration
    type: histogram
    unit: s
    description: Duration of inbound HTTP requests
  - name: queue.depth
    category: Messaging
    meter_type: gauge

Examples:
  metricsd index catalog.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		results, err := svc.SearchMetadata(ctx, args[0], searchLimit)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), results)
	})
}

func runIndex(cmd *cobra.Command, args []string) error {
	entries, err := readMetadataFile(args[0])
	if err != nil {
		return err
	}
	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		names, err := svc.IndexMetadataBatch(ctx, entries)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"indexed": len(names),
			"names":   names,
		})
	})
}

// readMetadataFile decodes a YAML (or JSON) list of metadata entries.
func readMetadataFile(path string) ([]metadata.MetricMetadata, error) {
	clean, err := sanitize.ValidatePath(path, "")
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxIndexFileSize {
		return nil, &metadata.ValidationError{Field: "file", Message: "metadata file exceeds 16MB"}
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}

	var entries []metadata.MetricMetadata
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, &metadata.ValidationError{Field: "file", Message: "invalid metadata file: " + err.Error(), Err: err}
	}
	return entries, nil
}
