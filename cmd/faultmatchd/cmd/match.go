package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faultmatch/core/internal/domain"
	"github.com/faultmatch/core/internal/output"
	"github.com/faultmatch/core/internal/pipeline"
)

type matchOptions struct {
	limit       int
	system      string
	part        string
	vehicleType string
	faultCode   string
	remote      bool
	llm         bool
	format      string
	embedder    string
}

func newMatchCmd() *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "match <query>",
		Short: "Match a free-text fault description against the knowledge base",
		Long: `match runs one request through the full pipeline: normalize,
fan out to the keyword/semantic/remote retrievers, fuse, optionally
rerank, route through the gray-zone decision, and optionally adjudicate
with the LLM picker.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runMatch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = pipeline default)")
	cmd.Flags().StringVar(&opts.system, "system", "", "Hint: vehicle system")
	cmd.Flags().StringVar(&opts.part, "part", "", "Hint: part")
	cmd.Flags().StringVar(&opts.vehicleType, "vehicle-type", "", "Hint: vehicle type")
	cmd.Flags().StringVar(&opts.faultCode, "fault-code", "", "Hint: fault code")
	cmd.Flags().BoolVar(&opts.remote, "remote", false, "Include the remote full-text+vector backend")
	cmd.Flags().BoolVar(&opts.llm, "llm", false, "Allow LLM adjudication in the gray zone")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder provider override: ollama, static")

	return cmd
}

func runMatch(ctx context.Context, cmd *cobra.Command, query string, opts matchOptions) error {
	loaded, _, err := buildOrchestrator(ctx, opts.embedder)
	if err != nil {
		return err
	}
	defer loaded.Close()

	resp, err := loaded.orch.Handle(ctx, pipeline.Request{
		Query: query,
		Hints: domain.Hints{
			System:      opts.system,
			Part:        opts.part,
			VehicleType: opts.vehicleType,
			FaultCode:   opts.faultCode,
		},
		TopNReturn: opts.limit,
		UseRemote:  opts.remote,
		UseLLM:     opts.llm,
	})
	if err != nil {
		return fmt.Errorf("match failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return formatMatchText(output.New(cmd.OutOrStdout()), resp)
}

func formatMatchText(out *output.Writer, resp *pipeline.Response) error {
	out.Statusf("🔍", "%d candidates for %q — decision: %s", resp.Total, resp.Query, resp.Decision.Mode)
	if resp.Decision.ChosenID != "" {
		out.Status("", fmt.Sprintf("chosen: %s (confidence %.2f) — %s", resp.Decision.ChosenID, resp.Decision.Confidence, resp.Decision.Reason))
	} else if resp.Decision.Reason != "" {
		out.Status("", resp.Decision.Reason)
	}
	out.Newline()

	for i, r := range resp.Top {
		out.Statusf("", "%d. %s (final: %.3f, bm25: %.3f, cosine: %.3f, rerank: %.3f)",
			i+1, r.ID, r.FinalScore, r.BM25Score, r.Cosine, r.RerankScore)
		if r.System != "" || r.Part != "" {
			out.Status("", fmt.Sprintf("   system=%s part=%s", r.System, r.Part))
		}
		for _, why := range r.Why {
			out.Status("", "   - "+why)
		}
	}
	return nil
}
