package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

// NewTraceCommand re-renders the reasoning trace of a saved analyze result.
func NewTraceCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <result.json>",
		Short: "Summarize or render the reasoning trace of a saved result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var saved struct {
				Trace []review.TraceEntry `json:"reasoning_trace"`
			}
			if err := json.Unmarshal(data, &saved); err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			if root.Format == "text" {
				return review.RenderText(cmd.OutOrStdout(), saved.Trace)
			}
			return writeJSON(cmd.OutOrStdout(), review.Summarize(saved.Trace))
		},
	}
}
