package cmd

import (
	"github.com/spf13/cobra"

	"github.com/faultmatch/core/internal/lifecycle"
	"github.com/faultmatch/core/internal/output"
)

func newDoctorCmd() *cobra.Command {
	var pull bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check whether the Ollama endpoint backing embeddings and the LLM picker is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, pull)
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull the configured embedding model if it is missing")
	return cmd
}

func runDoctor(cmd *cobra.Command, pull bool) error {
	out := output.New(cmd.OutOrStdout())

	settings, err := loadSettingsOnly()
	if err != nil {
		return err
	}

	host := ollamaHostFromAPIBase(settings.LLM.APIBase)
	mgr := lifecycle.NewOllamaManagerWithHost(host)

	status, err := mgr.Status(cmd.Context(), settings.LLM.EmbeddingModel)
	if err != nil {
		out.Errorf("could not determine ollama status: %v", err)
		out.Status("", lifecycle.InstallInstructions())
		return nil
	}

	if !status.Installed {
		out.Warning("ollama is not installed")
		out.Status("", lifecycle.InstallInstructions())
		return nil
	}
	out.Successf("ollama installed at %s", status.InstalledPath)

	if !status.Running {
		out.Warningf("ollama is not running at %s", host)
		return nil
	}
	out.Successf("ollama running at %s", host)

	if status.HasModel {
		out.Successf("embedding model %q is available", settings.LLM.EmbeddingModel)
		return nil
	}

	out.Warningf("embedding model %q not found; available: %v", settings.LLM.EmbeddingModel, status.Models)
	if !pull {
		return nil
	}

	out.Status("", "pulling model...")
	progress := lifecycle.CreatePullProgressFunc(cmd.OutOrStdout())
	if err := mgr.PullModel(cmd.Context(), settings.LLM.EmbeddingModel, progress); err != nil {
		return err
	}
	out.Newline()
	out.Successf("pulled embedding model %q", settings.LLM.EmbeddingModel)
	return nil
}

// ollamaHostFromAPIBase strips the OpenAI-compatible "/v1" suffix that
// config.LLMConfig.APIBase carries, since lifecycle.OllamaManager talks
// to Ollama's native API root.
func ollamaHostFromAPIBase(apiBase string) string {
	const suffix = "/v1"
	if len(apiBase) >= len(suffix) && apiBase[len(apiBase)-len(suffix):] == suffix {
		return apiBase[:len(apiBase)-len(suffix)]
	}
	return apiBase
}
