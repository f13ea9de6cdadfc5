package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/osiDTDr/ai-contract-review/common/id"
	"github.com/osiDTDr/ai-contract-review/common/logger"
	"github.com/osiDTDr/ai-contract-review/core/config"
	"github.com/osiDTDr/ai-contract-review/internal/http/dto"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/service"
)

type analyzeOptions struct {
	rulesPath      string
	analyzer       string
	compliance     string
	retriever      string
	disabledStages []string
}

func NewAnalyzeCommand(root *RootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Review a .pdf, .docx or .txt contract",
		Long: `Run the review pipeline on one contract and print the result.

Configuration comes from the environment (.env.cli in development); flags
override the analyzer, compliance and retriever modes and the rules file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ServiceTypeCLI)
			if err != nil {
				return err
			}
			opts.apply(cmd, &cfg)
			return runAnalyze(cmd, root, cfg, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.rulesPath, "rules", "", "YAML rules file (default: embedded rules)")
	cmd.Flags().StringVar(&opts.analyzer, "analyzer", "", "risk analyzer: pattern or llm")
	cmd.Flags().StringVar(&opts.compliance, "compliance", "", "compliance checker: keyword or llm")
	cmd.Flags().StringVar(&opts.retriever, "retriever", "", "knowledge retriever: lexical, vector or none")
	cmd.Flags().StringSliceVar(&opts.disabledStages, "disable-stage", nil, "optional stage to skip (repeatable)")

	return cmd
}

func (o *analyzeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.rulesPath != "" {
		cfg.Review.RulesPath = o.rulesPath
	}
	if o.analyzer != "" {
		cfg.Review.AnalyzerMode = o.analyzer
	}
	if o.compliance != "" {
		cfg.Review.ComplianceMode = o.compliance
	}
	if o.retriever != "" {
		cfg.Review.RetrieverMode = o.retriever
	}
	if cmd.Flags().Changed("disable-stage") {
		cfg.Review.DisabledStages = o.disabledStages
	}
}

func runAnalyze(cmd *cobra.Command, root *RootOptions, cfg config.Config, path string) error {
	ctx := cmd.Context()
	setupLogging(cmd.ErrOrStderr(), cfg, root.Verbose)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := id.Init(1); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	builder, err := service.NewPipelineBuilder(ctx, cfg)
	if err != nil {
		return err
	}
	set, err := builder.Rules()
	if err != nil {
		return err
	}
	orch, err := builder.Build(set)
	if err != nil {
		return err
	}

	svc := service.NewReviewService(service.ReviewDeps{Reviewer: orch})
	out, err := svc.Analyze(ctx, service.Upload{FileName: filepath.Base(path), Data: data})
	if err != nil {
		var trace []review.TraceEntry
		if out != nil && out.Result != nil {
			trace = out.Result.Trace
		}
		if len(trace) > 0 {
			_ = writeTrace(cmd.ErrOrStderr(), root.Format, trace)
		}
		return err
	}

	if root.Format == "text" {
		return review.RenderText(cmd.OutOrStdout(), out.Result.Trace)
	}
	return writeJSON(cmd.OutOrStdout(), dto.ToAnalyzeResponse(out.ID, out.Result))
}

func writeTrace(w io.Writer, format string, trace []review.TraceEntry) error {
	if format == "text" {
		return review.RenderText(w, trace)
	}
	return writeJSON(w, map[string]any{"reasoning_trace": trace})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// setupLogging keeps stdout for results. Without --verbose only warnings
// and errors reach stderr.
func setupLogging(w io.Writer, cfg config.Config, verbose bool) {
	h := logger.NewHandler(cfg, w)
	if !verbose {
		h = levelFilter{Handler: h, min: slog.LevelWarn}
	}
	slog.SetDefault(slog.New(h))
}
