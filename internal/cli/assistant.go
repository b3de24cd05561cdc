package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alegriaw/chi-monthly-report-analyzer/internal/assistant"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/insights"
	"github.com/alegriaw/chi-monthly-report-analyzer/internal/report"
	"github.com/spf13/cobra"
)

// loadSummaryData runs the comparison for the summary and chat commands.
func (a *app) loadSummaryData(cmd *cobra.Command, p insights.CompareParams, path string) (assistant.SummaryData, error) {
	params, err := a.params(p, path)
	if err != nil {
		return assistant.SummaryData{}, err
	}
	an, done := a.analyzer(cmd)
	defer done()
	res, _, err := an.Compare(cmd.Context(), params)
	if err != nil {
		return assistant.SummaryData{}, err
	}
	return assistant.SummaryDataFrom(res), nil
}

func (a *app) summaryCmd() *cobra.Command {
	var (
		p        insights.CompareParams
		standard bool
	)
	cmd := &cobra.Command{
		Use:   "summary <workbook.xlsx>",
		Short: "Generate the monthly summary with the AI assistant",
		Long:  "Generate a 200 to 300 word markdown summary of the comparison. When the assistant is unavailable the standard summary is printed instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.loadSummaryData(cmd, p, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !standard {
				if text := a.summaryOrFallback(cmd, data); text != "" {
					fmt.Fprintln(w, renderMarkdown(w, text))
					return nil
				}
			}
			fmt.Fprintln(w, report.StandardSummary(data.Counts, data.LowScore))
			return nil
		},
	}
	compareFlags(cmd, &p)
	cmd.Flags().BoolVar(&standard, "standard", false, "Print the standard summary without calling the assistant")
	return cmd
}

const chatHelp = `Commands:
  <question>          ask about the summary or request a rewrite
  /quick <name>       canned rewrite: improvements, risks, metrics
  /adopt              use the last answer as the summary
  /revert             restore the original summary
  /regenerate         generate a fresh summary
  /summary            show the current summary
  /history            list the conversation
  /clear              clear the conversation
  /exit               leave`

func (a *app) chatCmd() *cobra.Command {
	var p insights.CompareParams
	cmd := &cobra.Command{
		Use:   "chat <workbook.xlsx>",
		Short: "Refine the AI summary interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.loadSummaryData(cmd, p, args[0])
			if err != nil {
				return err
			}
			svc, err := a.assistantService(cmd.Context())
			if err != nil {
				return err
			}
			return a.chatLoop(cmd, svc, svc.Sessions().NewSession(data))
		},
	}
	compareFlags(cmd, &p)
	return cmd
}

// chatLoop reads one command per line until /exit or end of input.
func (a *app) chatLoop(cmd *cobra.Command, svc *assistant.Service, sess *assistant.Session) error {
	ctx := cmd.Context()
	w := cmd.OutOrStdout()
	s := newStyles(w)

	fail := func(err error) {
		fmt.Fprintln(w, s.bad.Render(assistant.UserMessage(err)))
	}
	show := func(title, md string) {
		fmt.Fprintln(w, s.title.Render(title))
		fmt.Fprintln(w, renderMarkdown(w, md))
	}
	summarize := func() {
		text, err := svc.Summarize(ctx, sess)
		if err != nil {
			fail(err)
			if sess.State() == assistant.StateIdle {
				_ = sess.ShowSummary(report.StandardSummary(sess.Data.Counts, sess.Data.LowScore))
			}
			show("Standard Summary", sess.CurrentSummary())
			return
		}
		show("AI Summary", text)
	}
	ask := func(question string) {
		answer, err := svc.Ask(ctx, sess, question)
		if err != nil {
			fail(err)
			return
		}
		show("Assistant", answer)
	}

	summarize()
	fmt.Fprintln(w, s.dim.Render(chatHelp))

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(w, s.title.Render("> "))
		if !in.Scan() {
			fmt.Fprintln(w)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		name, arg, _ := strings.Cut(line, " ")
		switch name {
		case "":
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(w, chatHelp)
		case "/quick":
			q, ok := assistant.QuickQuestion(arg).Text()
			if !ok {
				fmt.Fprintln(w, s.warn.Render("quick questions: improvements, risks, metrics"))
				continue
			}
			ask(q)
		case "/adopt":
			if err := sess.AdoptResponse(); err != nil {
				fmt.Fprintln(w, s.warn.Render("nothing to adopt; ask a question first"))
				continue
			}
			fmt.Fprintln(w, s.good.Render("summary updated"))
		case "/revert":
			if err := sess.Revert(); err != nil {
				fmt.Fprintln(w, s.warn.Render("already showing the original summary"))
				continue
			}
			fmt.Fprintln(w, s.good.Render("original summary restored"))
		case "/regenerate":
			summarize()
		case "/summary":
			show("Current Summary", sess.CurrentSummary())
		case "/history":
			printHistory(w, sess.History())
		case "/clear":
			if err := sess.ClearHistory(); err != nil {
				fail(err)
				continue
			}
			fmt.Fprintln(w, s.good.Render("conversation cleared"))
		default:
			if strings.HasPrefix(name, "/") {
				fmt.Fprintln(w, s.warn.Render("unknown command "+name+"; /help lists commands"))
				continue
			}
			ask(line)
		}
	}
}

func printHistory(w io.Writer, turns []assistant.ChatTurn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "no conversation yet")
		return
	}
	for i, t := range turns {
		fmt.Fprintf(w, "Q%d: %s\nA%d: %s\n\n", i+1, t.Question, i+1, t.Answer)
	}
}

func (a *app) statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the AI assistant is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.assistantService(cmd.Context())
			if err != nil {
				return err
			}
			st := svc.Status(cmd.Context())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check the Amazon Q CLI sign-in and show how to sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.assistantService(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.Login(cmd.Context())
			if err != nil {
				return errors.New(assistant.UserMessage(err))
			}
			w := cmd.OutOrStdout()
			s := newStyles(w)
			if res.LoggedIn {
				fmt.Fprintln(w, s.good.Render(res.Message))
				return nil
			}
			fmt.Fprintln(w, s.warn.Render(res.Message))
			for i, step := range res.Steps {
				fmt.Fprintf(w, "%d. %s\n", i+1, step)
			}
			return nil
		},
	}
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign the Amazon Q CLI out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.assistantService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Logout(cmd.Context()); err != nil {
				a.logger.Warn().Err(err).Msg("q logout failed")
				return errors.New(assistant.UserMessage(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), newStyles(cmd.OutOrStdout()).good.Render("Logout successful!"))
			return nil
		},
	}
}
