package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerRunCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the grant synchronization worker",
}

var workerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Consume synchronization tasks until interrupted",
	Long: `Consume grant and revoke tasks from the AMQP queue and apply them
against the grant substrate. Requires an AMQP URL in the configuration
or SHAREGATE_AMQP_URL.

Tasks are delivered at least once; redelivery of an already-applied task
is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.AMQPURL == "" {
			return fmt.Errorf("worker requires an AMQP queue; set amqp_url or SHAREGATE_AMQP_URL")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Consuming from queue '%s'\n", cfg.QueueName)
		return syncer.Run(ctx)
	},
}
