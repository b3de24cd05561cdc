package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/validation"
	"github.com/spf13/cobra"
)

// params completes p with the workbook path and the configured threshold.
func (a *app) params(p insights.CompareParams, path string) (insights.CompareParams, error) {
	p.Path = path
	th := a.cfg.Analysis.Threshold
	p.Threshold = &th
	if msg := validation.ValidateStruct(p); msg != "" {
		return p, fmt.Errorf("%s", msg)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) analyzeCmd() *cobra.Command {
	var (
		p        insights.CompareParams
		records  bool
		asJSON   bool
		category string
	)
	cmd := &cobra.Command{
		Use:   "analyze <workbook.xlsx>",
		Short: "Classify customers moving in and out of the low security score zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := a.params(p, args[0])
			if err != nil {
				return err
			}
			var only insights.Category
			if category != "" {
				c, ok := insights.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				only = c
			}

			an, done := a.analyzer(cmd)
			defer done()
			res, _, err := an.Compare(cmd.Context(), params)
			if err != nil {
				return err
			}
			done()

			w := cmd.OutOrStdout()
			if asJSON {
				if only != "" {
					return writeJSON(w, res.Classification.Get(only))
				}
				return writeJSON(w, res)
			}
			renderAnalysis(w, res, records || only != "")
			return nil
		},
	}
	compareFlags(cmd, &p)
	cmd.Flags().BoolVar(&records, "records", false, "List the customers in each category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the analysis as JSON")
	cmd.Flags().StringVar(&category, "category", "", "With --json, print only this category's records")
	return cmd
}

func (a *app) trendCmd() *cobra.Command {
	var (
		p      insights.CompareParams
		since  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "trend <workbook.xlsx>",
		Short: "Show the low-score series across YYYY-MM-DD snapshot sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := a.params(p, args[0])
			if err != nil {
				return err
			}
			in := insights.TrendInput{CompareParams: params, Since: since}
			if msg := validation.ValidateStruct(in); msg != "" {
				return fmt.Errorf("%s", msg)
			}

			an, done := a.analyzer(cmd)
			defer done()
			out, err := an.Trend(cmd.Context(), in)
			if err != nil {
				return err
			}
			done()

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			renderTrend(cmd.OutOrStdout(), out)
			return nil
		},
	}
	compareFlags(cmd, &p)
	cmd.Flags().StringVar(&since, "since", "", "Ignore snapshot sheets dated before YYYY-MM-DD")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the series as JSON")
	return cmd
}
