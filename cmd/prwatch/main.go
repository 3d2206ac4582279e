package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"prwatch/config"
	"prwatch/internal/api"
	"prwatch/internal/classify"
	"prwatch/internal/credentials"
	"prwatch/internal/model"
	"prwatch/internal/permissions"
	"prwatch/internal/sync"
)

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prwatch",
		Short: "Track your GitHub pull request activity",
		Long: `prwatch polls GitHub for pull requests you are involved in and tells
you what needs your attention right now, and why.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(
		initCmd(),
		tokenCmd(),
		fetchCmd(),
		watchCmd(),
		checkCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "prwatch",
		Level: hclog.LevelFromString(logLevel),
	})
}

// openStore resolves the credential source: env/config token beats the
// credential database.
func openStore(cfg *config.Config) (credentials.Store, func(), error) {
	if cfg.GitHubToken != "" {
		return credentials.Static(cfg.GitHubToken), func() {}, nil
	}
	store, err := credentials.Open(cfg.CredentialsPath)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { store.Close() }, nil
}

func newPoller(cfg *config.Config, store credentials.Store, logger hclog.Logger) *sync.Poller {
	return sync.New(store, func(token string) sync.Fetcher {
		return api.NewClient(token, api.Options{
			Endpoint:        cfg.GraphQLEndpoint,
			ExtraBotAuthors: cfg.ExtraBotAuthors,
			Logger:          logger,
		})
	}, sync.Options{
		Interval: cfg.PollInterval(),
		Timeout:  cfg.RequestTimeout(),
		Logger:   logger,
	})
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfig(configPath); err != nil {
				return err
			}
			fmt.Printf("Created configuration at %s\n", configPath)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored GitHub token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store a GitHub token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := credentials.Open(cfg.CredentialsPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Set(args[0]); err != nil {
				return err
			}
			fmt.Println("Token stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, err := credentials.Open(cfg.CredentialsPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(); err != nil {
				return err
			}
			fmt.Println("Token cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show whether a token is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			token, err := store.Get()
			if err != nil {
				return err
			}
			if token == "" {
				fmt.Println("No token configured")
				return nil
			}
			fmt.Printf("Token configured: %s\n", maskToken(token))
			return nil
		},
	})

	return cmd
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch cycle and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			poller := newPoller(cfg, store, newLogger())
			poller.Refresh(cmd.Context())

			snap := poller.Snapshot()
			if snap.LastError != "" {
				return fmt.Errorf("fetch failed: %s", snap.LastError)
			}

			printSummary(snap, poller.Counts(), poller.Health())
			for _, pr := range poller.Filtered(model.FilterInbox) {
				fmt.Printf("  %s  %s (%s#%d)\n", attentionMark(pr), pr.Title, pr.RepoFullName, pr.Number)
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := newLogger()
			poller := newPoller(cfg, store, logger)
			poller.Start(cmd.Context())
			defer poller.Stop()

			logger.Info("watching", "interval", cfg.PollInterval().String())
			<-cmd.Context().Done()
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the token and its permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			token, err := store.Get()
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("no GitHub token configured; run 'prwatch token set' or set %s", config.EnvGithubToken)
			}

			logger := newLogger()
			client := api.NewClient(token, api.Options{
				Endpoint: cfg.GraphQLEndpoint,
				Logger:   logger,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout())
			login, err := client.Viewer(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("token check failed: %w", err)
			}
			fmt.Printf("Authenticated as %s\n", login)

			validator := permissions.NewValidator(client, cfg.RequestTimeout(), logger)
			state := validator.Validate(cmd.Context())

			fmt.Printf("  pull requests:   %s\n", state.PullRequests)
			fmt.Printf("  commit statuses: %s\n", state.CommitStatuses)
			fmt.Printf("  reviews:         %s\n", state.Reviews)
			fmt.Printf("  comments:        %s\n", state.Comments)
			if !state.HasMinimumPermissions() {
				return fmt.Errorf("token is missing required read permissions")
			}
			if !state.HasAllPermissions() {
				fmt.Println("Commit status access is unavailable; CI state will show as unknown")
			}
			return nil
		},
	}
}

func printSummary(snap sync.Snapshot, counts map[model.Filter]int, health classify.Health) {
	fmt.Printf("%d open pull requests for %s (health: %s)\n", len(snap.PRs), snap.Viewer, health)
	parts := make([]string, 0, len(model.Filters()))
	for _, f := range model.Filters() {
		parts = append(parts, fmt.Sprintf("%s: %d", f, counts[f]))
	}
	fmt.Printf("  %s\n", strings.Join(parts, "  "))
}

func attentionMark(pr *model.PullRequest) string {
	if classify.NeedsAttention(pr) {
		return "!"
	}
	return "-"
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}
