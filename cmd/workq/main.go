// Command workq asks questions about work items from the terminal and
// serves the same pipeline as an MCP tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuannvm/workitem-qa/internal/app"
	"github.com/tuannvm/workitem-qa/internal/config"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/mcptool"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/orchestrator"
	"github.com/tuannvm/workitem-qa/internal/wiql"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "workq",
		Short: "Ask questions about work items",
		Long: `workq answers natural-language questions about the work items in your tracker.

Configuration comes from the environment (see .env) or the file named by WORKQ_CONFIG.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("user", "", "user id the questions are asked as")

	rootCmd.AddCommand(newAskCmd(), newPlanCmd(), newValidateQueryCmd(), newMCPCmd())
	return rootCmd
}

// setup loads configuration, initialises logging and builds the pipeline.
func setup(cmd *cobra.Command) (*config.Config, *app.App, error) {
	cfg := config.NewConfig()
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log.Init(cfg.LogLevel, "console")

	a, err := app.Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, a, nil
}

func userFlag(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("user"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question",
		Example: `  workq ask "show me active bugs"
  workq ask --conversation 3f2a... "and the closed ones?"
  workq ask /state Active /type Bug --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			conversationID, _ := cmd.Flags().GetString("conversation")
			asJSON, _ := cmd.Flags().GetBool("json")
			onlyMine, _ := cmd.Flags().GetBool("only-mine")
			skipCache, _ := cmd.Flags().GetBool("skip-cache")

			req := orchestrator.Request{
				Query:          strings.Join(args, " "),
				UserID:         userFlag(cmd),
				ConversationID: conversationID,
				Options:        models.Options{SkipCache: skipCache},
			}
			if onlyMine {
				req.Filters = &models.Filters{OnlyMine: true}
			}

			ctx, stop := signalContext()
			defer stop()

			if asJSON {
				resp, err := a.Pipeline.Answer(ctx, req)
				if encErr := writeJSON(cmd.OutOrStdout(), resp); encErr != nil {
					return encErr
				}
				return err
			}
			return streamAnswer(ctx, cmd.OutOrStdout(), a.Pipeline, req)
		},
	}
	cmd.Flags().StringP("conversation", "c", "", "conversation id to continue")
	cmd.Flags().Bool("json", false, "print the full response as JSON")
	cmd.Flags().Bool("only-mine", false, "only work items assigned to you")
	cmd.Flags().Bool("skip-cache", false, "ignore cached results")
	return cmd
}

// streamAnswer prints tokens as they arrive, then the suggestions and the
// conversation id.
func streamAnswer(ctx context.Context, w io.Writer, p *orchestrator.Pipeline, req orchestrator.Request) error {
	streamed := false
	for ev := range p.ProcessStream(ctx, req) {
		switch ev.Type {
		case models.EventToolUse:
			fmt.Fprintf(w, "> running %d quer%s\n", len(ev.Queries), plural(len(ev.Queries), "y", "ies"))
		case models.EventToken:
			streamed = true
			fmt.Fprint(w, ev.Text)
		case models.EventCorrection:
			fmt.Fprintf(w, "\n\n[corrected] %s", ev.Text)
		case models.EventError:
			return fmt.Errorf("%s", ev.Error)
		case models.EventDone:
			resp := ev.Response
			if resp == nil {
				return nil
			}
			if !streamed {
				fmt.Fprint(w, resp.Summary)
			}
			fmt.Fprintln(w)
			if len(resp.Suggestions) > 0 {
				fmt.Fprintln(w, "\nYou could also ask:")
				for _, s := range resp.Suggestions {
					fmt.Fprintf(w, "  - %s\n", s)
				}
			}
			fmt.Fprintf(w, "\nconversation: %s\n", resp.Metadata.ConversationID)
		}
	}
	return ctx.Err()
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [question]",
		Short: "Show the intent, decision and query plan without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()
			ex, err := a.Pipeline.Explain(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ex)
		},
	}
}

func newValidateQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-query [where clause]",
		Short: "Check a WIQL WHERE clause and print the repaired version",
		Example: `  workq validate-query "[System.IterationPath] CONTAINS 'Sprint 5'"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateQuery(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
}

func validateQuery(w io.Writer, body string) error {
	violations := wiql.Validate(body)
	if len(violations) == 0 {
		fmt.Fprintln(w, "ok")
		return nil
	}
	for _, v := range violations {
		fmt.Fprintf(w, "%s\n", v)
	}
	fixed, applied := wiql.Fix(body)
	if len(applied) > 0 {
		fmt.Fprintf(w, "\napplied fixes: %s\n", strings.Join(applied, ", "))
		fmt.Fprintf(w, "fixed query:\n%s\n", fixed)
	}
	if left := wiql.Unfixable(wiql.Validate(fixed)); len(left) > 0 {
		return fmt.Errorf("%d problem(s) cannot be fixed automatically", len(left))
	}
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ask_work_items tool over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcptool.NewServer(cfg.AgentName, cfg.AgentVersion, a.Pipeline, userFlag(cmd))
			log.Infof("Serving MCP on stdio")
			return mcptool.ServeStdio(s)
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
