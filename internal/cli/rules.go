package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osiDTDr/ai-contract-review/internal/rules"
)

func NewRulesCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect review rules files",
	}
	cmd.AddCommand(newRulesValidateCommand(root))
	return cmd
}

type rulesReport struct {
	Valid        bool   `json:"valid"`
	Path         string `json:"path"`
	Compliance   int    `json:"compliance_checks"`
	RiskPatterns int    `json:"risk_patterns"`
	Error        string `json:"error,omitempty"`
}

func newRulesValidateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Check a rules file without running a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report := rulesReport{Path: args[0]}
			set, err := rules.Load(args[0])
			if err != nil {
				report.Error = err.Error()
			} else {
				report.Valid = true
				report.Compliance = len(set.Compliance)
				report.RiskPatterns = len(set.Risks)
			}

			w := cmd.OutOrStdout()
			if root.Format == "json" {
				if werr := writeJSON(w, report); werr != nil {
					return werr
				}
			} else if report.Valid {
				fmt.Fprintf(w, "%s: ok (%d compliance checks, %d risk patterns)\n", report.Path, report.Compliance, report.RiskPatterns)
			}
			return err
		},
	}
}
