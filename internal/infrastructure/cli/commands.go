package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/aiosd/internal/domain"
	"github.com/doeshing/aiosd/internal/infrastructure/ai"
	"github.com/doeshing/aiosd/internal/infrastructure/config"
	"github.com/doeshing/aiosd/internal/infrastructure/history"
	"github.com/doeshing/aiosd/internal/infrastructure/ipc"
)

type socketResolver func(context.Context) string

func newStatusCommand(socket socketResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and backend status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{Action: domain.ActionStatus})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				printStatus(resp)
				return nil
			})
		},
	}
}

func printStatus(resp domain.Response) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "daemon:\t%s\n", resp.DaemonStatus)
	fmt.Fprintf(w, "backend:\t%s\n", resp.BackendStatus)
	fmt.Fprintf(w, "model:\t%s\n", resp.CurrentModel)
	if resp.SafetyMode != nil {
		fmt.Fprintf(w, "safety gate:\t%s\n", onOff(*resp.SafetyMode))
	}
	if resp.ConfirmationMode != nil {
		fmt.Fprintf(w, "confirmation:\t%s\n", onOff(*resp.ConfirmationMode))
	}
	if resp.ActiveSessions != nil {
		fmt.Fprintf(w, "sessions:\t%d\n", *resp.ActiveSessions)
	}
	if resp.UptimeSeconds != nil {
		fmt.Fprintf(w, "uptime:\t%s\n", (time.Duration(*resp.UptimeSeconds) * time.Second).String())
	}
	w.Flush()

	if len(resp.AvailableModels) > 0 {
		fmt.Println("\nmodels:")
		mw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(mw, "  NAME\tSCORE\tREQUESTS\tAVG RT\tENABLED")
		for _, m := range resp.AvailableModels {
			fmt.Fprintf(mw, "  %s\t%.2f\t%d\t%.2fs\t%t\n",
				m.Name, m.PerformanceScore, m.TotalRequests(), m.AvgResponseTime, m.Enabled)
		}
		mw.Flush()
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func newAskCommand(socket socketResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [natural language]",
		Short: "Translate natural language to a shell command",
		Long: "Translates the request and prints the resulting command. In the default\n" +
			"confirmation mode nothing runs; with confirmation disabled in the config\n" +
			"the daemon executes safe commands immediately and the output follows.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{
					Action:  domain.ActionInterpret,
					Command: strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				fmt.Println(resp.InterpretedCommand)
				if resp.FromFeedback {
					fmt.Fprintln(os.Stderr, "(reused a previously accepted interpretation)")
				}
				if resp.ConfirmRequired {
					fmt.Fprintln(os.Stderr, "(run it with: aiosd exec --raw '"+resp.InterpretedCommand+"')")
				}
				if resp.ExecutionResult != "" {
					fmt.Print(resp.ExecutionResult)
				}
				if resp.ExitCode != nil && *resp.ExitCode != 0 {
					return exitError{code: *resp.ExitCode}
				}
				return nil
			})
		},
	}
}

func newExecCommand(socket socketResolver) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "exec [natural language]",
		Short: "Translate and execute a command",
		Long: "Translates the natural-language request and executes the result. With\n" +
			"--raw the argument is treated as an already-interpreted shell command\n" +
			"and runs as-is; blocked commands are refused either way.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := strings.Join(args, " ")
			req := domain.Request{Action: domain.ActionExecute}
			if raw {
				req.Interpreted = input
			} else {
				req.Command = input
			}
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, req)
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				if !raw {
					fmt.Fprintln(os.Stderr, "$ "+resp.InterpretedCommand)
				}
				fmt.Print(resp.ExecutionResult)
				if resp.ExitCode != nil && *resp.ExitCode != 0 {
					return exitError{code: *resp.ExitCode}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "treat the argument as a shell command, skip interpretation")
	return cmd
}

func newChatCommand(socket socketResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the backend model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{
					Action:  domain.ActionChat,
					Command: strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				fmt.Println(resp.ChatResponse)
				return nil
			})
		},
	}
}

func newClassifyCommand(socket socketResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [input]",
		Short: "Classify input as a command request or chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{
					Action:  domain.ActionClassify,
					Command: strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				fmt.Println(resp.Classification)
				return nil
			})
		},
	}
}

func newContextCommand(socket socketResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Show the session context tracked by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{Action: domain.ActionGetContext})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess || resp.Context == nil {
					return exitForStatus(resp)
				}
				printContext(*resp.Context)
				return nil
			})
		},
	}
}

func printContext(sc domain.SessionContext) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "user:\t%s@%s\n", sc.Username, sc.Hostname)
	fmt.Fprintf(w, "directory:\t%s\n", sc.WorkingDir)
	fmt.Fprintf(w, "shell:\t%s\n", sc.Shell)
	if sc.GitBranch != "" {
		fmt.Fprintf(w, "git branch:\t%s\n", sc.GitBranch)
	}
	fmt.Fprintf(w, "updated:\t%s\n", sc.LastUpdate.Format(time.RFC3339))
	w.Flush()
	if len(sc.RecentCommands) > 0 {
		fmt.Println("recent commands:")
		for _, c := range sc.RecentCommands {
			fmt.Println("  " + c)
		}
	}
}

func newModelCommand(socket socketResolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or switch the active model",
	}
	var backendModels bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List configured model profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if backendModels {
				cfg, err := config.NewFileLoader("").Load(ctx)
				if err != nil {
					cfg = config.Default()
				}
				names, err := ai.NewOllamaClient(ai.Options{APIURL: cfg.Backend.APIURL}).ListModels(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			}
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{Action: domain.ActionStatus})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSCORE\tPRIORITY\tTASKS\tENABLED")
				for _, m := range resp.AvailableModels {
					marker := " "
					if m.Name == resp.CurrentModel {
						marker = "*"
					}
					tasks := make([]string, 0, len(m.TaskTypes))
					for _, tt := range m.TaskTypes {
						tasks = append(tasks, string(tt))
					}
					fmt.Fprintf(w, "%s%s\t%.2f\t%d\t%s\t%t\n",
						marker, m.Name, m.PerformanceScore, m.Priority, strings.Join(tasks, ","), m.Enabled)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().BoolVar(&backendModels, "backend", false, "list models installed on the backend instead of configured profiles")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "set [name]",
		Short: "Switch the active model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{
					Action: domain.ActionSetModel,
					Model:  args[0],
				})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				fmt.Println(resp.Message)
				return nil
			})
		},
	})
	return cmd
}

func newFeedbackCommand(socket socketResolver) *cobra.Command {
	var (
		accepted    bool
		rejected    bool
		interpreted string
		model       string
	)
	cmd := &cobra.Command{
		Use:   "feedback [natural language]",
		Short: "Record whether an interpretation was right",
		Long: "Stores an accept/reject verdict for a past interpretation. Accepted\n" +
			"interpretations are reused for identical requests without consulting\n" +
			"the backend.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accepted == rejected {
				return fmt.Errorf("pass exactly one of --accepted or --rejected")
			}
			ctx := cmd.Context()
			verdict := accepted
			return withClient(ctx, socket(ctx), func(client *ipc.Client) error {
				resp, err := client.Do(ctx, domain.Request{
					Action:      domain.ActionFeedback,
					Command:     strings.Join(args, " "),
					Interpreted: interpreted,
					Model:       model,
					Accepted:    &verdict,
				})
				if err != nil {
					return err
				}
				if resp.Status != domain.StatusSuccess {
					return exitForStatus(resp)
				}
				fmt.Println(resp.Message)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&accepted, "accepted", false, "the interpretation was correct")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "the interpretation was wrong")
	cmd.Flags().StringVarP(&interpreted, "interpreted", "i", "", "the shell command that was produced (required)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model that produced the interpretation")
	cmd.MarkFlagRequired("interpreted")
	return cmd
}

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past interpretations",
		Long:  "Reads the interpretation history directly from the local database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewFileLoader("").Load(cmd.Context())
			if err != nil {
				cfg = config.Default()
			}
			store := history.NewSQLiteStore(cfg.History.DatabasePath)
			defer store.Close()

			records, err := store.Records(limit, search)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no history")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tACTION\tPROMPT\tCOMMAND\tMODEL\tRAN\tEXIT")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%d\n",
					r.Timestamp.Format("2006-01-02 15:04"),
					r.Action, truncate(r.Prompt, 32), truncate(r.Command, 40),
					r.Model, r.Executed, r.ExitCode)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter on prompt or command substring")
	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
