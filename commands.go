package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/grocery-agent-core/server/internal/agent/graph"
	"github.com/grocery-agent-core/server/internal/agent/model"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

type rootOptions struct {
	envFile   string
	sessionID string
	chatID    string
	quiet     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "grocery-agent",
		Short: "Cache-gated grocery shopping and recipe assistant",
		Long: `A grocery shopping assistant that answers recipe, product, cart and cooking
questions through a bounded tool-calling loop, fronted by a semantic cache.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&opts.sessionID, "session", "", "session id (default: a new random id)")
	rootCmd.PersistentFlags().StringVar(&opts.chatID, "chat", "", "chat id within the session (default: a new random id)")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "discard log output")

	rootCmd.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newEndSessionCmd(opts),
		newDemoCmd(opts),
	)
	return rootCmd
}

// withApp loads configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts.envFile)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	if opts.quiet {
		logx.Silence()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logx.Warn().Err(err).Msg("Shutdown incomplete")
		}
	}()
	return fn(ctx, a)
}

func (o *rootOptions) ids() (sessionID, chatID string) {
	sessionID, chatID = o.sessionID, o.chatID
	if sessionID == "" {
		sessionID = "cli_" + uuid.NewString()[:8]
	}
	if chatID == "" {
		chatID = uuid.NewString()
	}
	return sessionID, chatID
}

func printResult(w io.Writer, res *model.QueryResult) {
	fmt.Fprintln(w, res.Content)
	var meta []string
	if res.IsCachedResponse {
		meta = append(meta, "cached")
	}
	if len(res.ToolsUsed) > 0 {
		meta = append(meta, "tools: "+strings.Join(res.ToolsUsed, ", "))
	}
	if res.CostUSD > 0 {
		meta = append(meta, fmt.Sprintf("cost: $%.6f", res.CostUSD))
	}
	if len(meta) > 0 {
		fmt.Fprintf(w, "[%s]\n", strings.Join(meta, " | "))
	}
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long:  "Chat with the assistant on stdin. Type /end to end the session, /quit to leave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				sessionID, chatID := opts.ids()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Session %s, chat %s\n", sessionID, chatID)

				scanner := bufio.NewScanner(cmd.InOrStdin())
				for {
					fmt.Fprint(out, "> ")
					if !scanner.Scan() {
						return scanner.Err()
					}
					line := strings.TrimSpace(scanner.Text())
					switch line {
					case "":
						continue
					case "/quit", "/exit":
						return nil
					case "/end":
						return endSession(ctx, out, a.runner, sessionID)
					}

					res, err := a.runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, ChatID: chatID, Message: line})
					if err != nil {
						fmt.Fprintf(out, "error: %v\n", err)
						continue
					}
					printResult(out, res)
					if ctx.Err() != nil {
						return nil
					}
				}
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Ask a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				sessionID, chatID := opts.ids()
				res, err := a.runner.Invoke(ctx, model.QueryInput{
					SessionID: sessionID,
					ChatID:    chatID,
					Message:   strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				printResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newEndSessionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "end-session",
		Short: "Delete cached answers, cart and chat history of a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return endSession(ctx, cmd.OutOrStdout(), a.runner, opts.sessionID)
			})
		},
	}
}

func endSession(ctx context.Context, w io.Writer, runner graph.Runner, sessionID string) error {
	out, err := runner.EndSession(ctx, sessionID)
	if out != nil {
		fmt.Fprintf(w, "Session %s ended: %d cached answers, %d cart items, %d chats removed\n",
			sessionID, out.CacheEntries, out.CartItems, out.Chats)
	}
	return err
}

var demoQueries = []struct {
	description string
	query       string
}{
	{description: "Recipe ingredients", query: "What ingredients do I need for butter chicken?"},
	{description: "More options for one ingredient", query: "Show me more options for paneer under $5"},
	{description: "Add to cart", query: "Add product 42 to my cart"},
	{description: "View cart", query: "What's in my cart?"},
	{description: "Cooking knowledge", query: "How should I store fresh coriander?"},
	{description: "Repeat recipe question (cache)", query: "what ingredients do i need for butter chicken?"},
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var keep bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				sessionID, chatID := opts.ids()
				out := cmd.OutOrStdout()

				for i, test := range demoQueries {
					fmt.Fprintf(out, "\nTest %d: %s\n", i+1, test.description)
					fmt.Fprintf(out, "Query: %q\n", test.query)

					start := time.Now()
					res, err := a.runner.Invoke(ctx, model.QueryInput{SessionID: sessionID, ChatID: chatID, Message: test.query})
					if err != nil {
						return fmt.Errorf("demo query %d: %w", i+1, err)
					}
					printResult(out, res)
					fmt.Fprintf(out, "(%s)\n", time.Since(start).Round(time.Millisecond))
					fmt.Fprintln(out, strings.Repeat("-", 48))
				}

				if keep {
					return nil
				}
				return endSession(ctx, out, a.runner, sessionID)
			})
		},
	}
	cmd.Flags().BoolVar(&keep, "keep", false, "keep the session data after the run")
	return cmd
}
