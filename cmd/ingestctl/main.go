// Command ingestctl is a thin CLI over the core ingestion pipeline
// (internal/pipeline), grounded on the teacher's cmd/embedctl for
// config/env loading and its cmd/nerd for cobra command layout. spec.md §6
// is explicit that CLI flags are not part of the core contract; this
// binary exists only to exercise ingest/batch_ingest/reingest/stats from a
// terminal, the same way a thin HTTP handler would.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/knowledgeforge/ingest/internal/config"
	"github.com/knowledgeforge/ingest/internal/extract"
	"github.com/knowledgeforge/ingest/internal/observability"
	"github.com/knowledgeforge/ingest/internal/pipeline"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ingestctl",
		Short: "Drive the ingestion pipeline from the command line",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to pipeline config")
	root.AddCommand(ingestCmd(), batchCmd(), reingestCmd(), statsCmd())
	return root
}

func buildPipeline(ctx context.Context) (*pipeline.Pipeline, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.Logging.FilePath, cfg.Logging.Level)

	p, err := pipeline.Build(ctx, cfg, pipeline.Options{
		Logger:  observability.NewPipelineLogger(),
		Metrics: observability.NewOtelMetrics(),
	})
	if err != nil {
		return nil, cfg, fmt.Errorf("build pipeline: %w", err)
	}
	return p, cfg, nil
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			raw, err := rawDocFromPath(args[0])
			if err != nil {
				return err
			}
			res, err := p.Ingest(ctx, raw)
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

func batchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [dir]",
		Short: "Ingest every file in a directory concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			entries, err := os.ReadDir(args[0])
			if err != nil {
				return fmt.Errorf("read dir: %w", err)
			}
			var raws []extract.RawDocument
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				raw, err := rawDocFromPath(filepath.Join(args[0], e.Name()))
				if err != nil {
					fmt.Fprintf(os.Stderr, "skip %s: %v\n", e.Name(), err)
					continue
				}
				raws = append(raws, raw)
			}
			results, err := p.BatchIngest(ctx, raws)
			if err != nil {
				return err
			}
			for _, res := range results {
				printResult(res)
			}
			return nil
		},
	}
}

func reingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reingest [doc_id]",
		Short: "Re-run the pipeline for a previously archived document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			res, err := p.Reingest(ctx, args[0])
			if err != nil {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ingest counters and cumulative LLM cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, _, err := buildPipeline(ctx)
			if err != nil {
				return err
			}
			s := p.Stats()
			fmt.Printf("stored=%d stored_unexported=%d duplicate=%d gated=%d failed=%d cancelled=%d timeout=%d\n",
				s.Counts.Stored, s.Counts.StoredUnexported, s.Counts.Duplicate, s.Counts.Gated, s.Counts.Failed, s.Counts.Cancelled, s.Counts.Timeout)
			fmt.Printf("llm calls=%d tokens_in=%d tokens_out=%d usd=%.4f\n", s.CostCalls, s.CostTokensIn, s.CostTokensOut, s.CostUSD)
			return nil
		},
	}
}

func rawDocFromPath(path string) (extract.RawDocument, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return extract.RawDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	return extract.RawDocument{Content: content, Filename: filepath.Base(path)}, nil
}

func printResult(res pipeline.IngestResult) {
	fmt.Printf("doc_id=%s status=%s stage=%s", res.DocID, res.Status, res.Stage)
	if res.Action != "" {
		fmt.Printf(" action=%s", res.Action)
	}
	if res.MatchedDocID != "" {
		fmt.Printf(" matched_doc_id=%s", res.MatchedDocID)
	}
	if res.ExportPath != "" {
		fmt.Printf(" export_path=%s", res.ExportPath)
	}
	if res.Message != "" {
		fmt.Printf(" message=%q", res.Message)
	}
	fmt.Println()
}
