package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/report"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		p         insights.CompareParams
		output    string
		withTrend bool
		withAI    bool
	)
	cmd := &cobra.Command{
		Use:   "export <workbook.xlsx>",
		Short: "Write the analysis to an Excel workbook or a markdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ext := strings.ToLower(filepath.Ext(output))
			if ext != ".xlsx" && ext != ".md" {
				return fmt.Errorf("--output must end in .xlsx or .md")
			}
			params, err := a.params(p, args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			an, done := a.analyzer(cmd)
			defer done()
			res, _, err := an.Compare(ctx, params)
			if err != nil {
				return err
			}
			var trend []insights.SnapshotMetrics
			if withTrend {
				t, err := an.Trend(ctx, insights.TrendInput{CompareParams: params})
				switch {
				case errors.Is(err, insights.ErrNoHistory):
					log.Warn().Msg("no dated snapshot sheets; exporting without trend")
				case err != nil:
					return err
				default:
					trend = t.Points
				}
			}
			done()

			if ext == ".xlsx" {
				err = report.SaveWorkbook(output, res, trend)
			} else {
				opts := report.MarkdownOptions{Trend: trend, GeneratedAt: time.Now()}
				if withAI {
					opts.AISummary = a.summaryOrFallback(cmd, assistant.SummaryDataFrom(res))
				}
				err = report.SaveMarkdown(output, res, opts)
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			return nil
		},
	}
	compareFlags(cmd, &p)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination .xlsx or .md file")
	cmd.Flags().BoolVar(&withTrend, "trend", false, "Include the historical trend from dated snapshot sheets")
	cmd.Flags().BoolVar(&withAI, "ai", false, "Include an AI summary in markdown reports")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// summaryOrFallback asks the assistant for a summary and returns "" after
// logging the user-facing reason when it cannot.
func (a *app) summaryOrFallback(cmd *cobra.Command, data assistant.SummaryData) string {
	ctx := cmd.Context()
	svc, err := a.assistantService(ctx)
	if err == nil {
		var text string
		if text, err = svc.GenerateSummary(ctx, data); err == nil {
			return text
		}
	}
	zerolog.Ctx(ctx).Warn().Err(err).Msg("AI summary unavailable")
	fmt.Fprintln(cmd.ErrOrStderr(), newStyles(cmd.ErrOrStderr()).warn.Render("AI summary skipped: "+assistant.UserMessage(err)))
	return ""
}
