package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faultmatch/core/internal/embed"
	"github.com/faultmatch/core/internal/output"
	"github.com/faultmatch/core/internal/store"
)

type indexOptions struct {
	embedder string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or refresh the persisted keyword and semantic indexes",
		Long: `index loads the configured knowledge base and (re)builds the
TF-IDF keyword cache and the HNSW semantic index whenever the data file
is newer than what is already persisted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder provider override: ollama, static")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	settings, err := loadSettingsOnly()
	if err != nil {
		return err
	}

	cs, err := store.LoadCases(settings.Paths.DataFile)
	if err != nil {
		return fmt.Errorf("load cases from %s: %w", settings.Paths.DataFile, err)
	}
	out.Statusf("", "loaded %d cases from %s", cs.Len(), settings.Paths.DataFile)

	kw, err := store.NewKeywordRetriever(ctx, cs, settings.Paths.TFIDFCachePath, store.DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("build keyword index: %w", err)
	}
	defer func() { _ = kw.Close() }()
	out.Successf("keyword index ready at %s", settings.Paths.TFIDFCachePath)

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(opts.embedder), settings.LLM.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	sem, err := store.NewSemanticRetriever(ctx, cs, embedder, settings.Paths.HNSWIndexPath, embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("build semantic index: %w", err)
	}
	defer func() { _ = sem.Close() }()
	out.Successf("semantic index ready at %s", settings.Paths.HNSWIndexPath)

	return nil
}
