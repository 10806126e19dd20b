// Package cmd implements the sharegate CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lakefabric/sharegate/internal/broker"
	"github.com/lakefabric/sharegate/internal/version"
	"github.com/lakefabric/sharegate/pkg/audit"
	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/principal"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
	"github.com/lakefabric/sharegate/pkg/task"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	configPath   string
	asUser       string
	asGroups     []string

	// Shared instances, built in PersistentPreRunE
	cfg      *broker.Config
	shareSt  *store.Store
	brk      *broker.Broker
	syncer   *task.Worker
	memQueue *task.MemoryQueue
)

var rootCmd = &cobra.Command{
	Use:   "sharegate",
	Short: "Share broker CLI for data asset access requests",
	Long: `sharegate is a command-line interface for brokering access to data assets.

It provides commands to register datasets, request and approve shares,
manage per-item grants, and transfer dataset stewardship.`,
	Version: version.String(),
	// Errors are rendered once, by main, through clierror.
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for completion commands
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		cfg = broker.DefaultConfig()
		if configPath != "" {
			if err := cfg.LoadFromFile(configPath); err != nil {
				return err
			}
		}
		if err := cfg.LoadFromEnv(); err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if cfg.DBPath == "" {
			cfg.DBPath = store.DefaultPath()
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var err error
		shareSt, err = store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		// Grants persist next to the database so that the substrate state
		// survives between invocations.
		client := grants.NewFileClient(filepath.Join(filepath.Dir(cfg.DBPath), "grants.json"))

		var queue task.Queue
		if cfg.AMQPURL != "" {
			queue, err = task.NewAMQPQueue(cfg.AMQPURL, cfg.QueueName)
			if err != nil {
				return fmt.Errorf("failed to connect to queue: %w", err)
			}
		} else {
			memQueue = task.NewMemoryQueue(64)
			queue = memQueue
		}

		recorder := audit.NewRecorder(nil, store.NewAuditBackend(shareSt))
		brk = broker.New(shareSt, queue, client, principal.PassthroughResolver{},
			broker.WithRecorder(recorder),
			broker.WithMaxReapplyAttempts(cfg.MaxReapplyAttempts))
		syncer = task.NewWorker(shareSt, queue, client, recorder, nil)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shareSt != nil {
			shareSt.Close()
		}
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for sharegate.

To load completions:

Bash:
  # Add to ~/.bashrc:
  source <(sharegate completion bash)

Zsh:
  # Add to ~/.zshrc:
  source <(sharegate completion zsh)

Fish:
  # Add to ~/.config/fish/completions/:
  sharegate completion fish > ~/.config/fish/completions/sharegate.fish

PowerShell:
  # Add to your PowerShell profile:
  sharegate completion powershell | Out-String | Invoke-Expression`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unknown shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/sharegate/sharegate.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&asUser, "as-user", "", "Acting username (default: $USER)")
	rootCmd.PersistentFlags().StringSliceVar(&asGroups, "as-groups", nil, "Acting group memberships (comma-separated)")
	rootCmd.AddCommand(completionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// OutputFormat returns the selected output format for error rendering.
func OutputFormat() string {
	return outputFormat
}

// actor builds the acting principal from the --as-user/--as-groups flags.
func actor() share.Actor {
	user := asUser
	if user == "" {
		user = os.Getenv("USER")
	}
	return share.Actor{Username: user, Groups: asGroups}
}

// drainTasks synchronizes pending grant work inline when the in-process queue
// is active. With an AMQP queue the worker process picks the tasks up instead.
func drainTasks(ctx context.Context) error {
	if memQueue == nil {
		return nil
	}
	return syncer.Drain(ctx, memQueue)
}

// formatOutput handles output formatting based on the --output flag.
func formatOutput(data interface{}) error {
	switch outputFormat {
	case "json":
		return outputJSON(data)
	case "yaml":
		return outputYAML(data)
	default:
		// Table format is handled by each command
		return nil
	}
}

func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
