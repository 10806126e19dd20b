package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lakefabric/sharegate/internal/broker"
	"github.com/lakefabric/sharegate/pkg/share"
	"github.com/lakefabric/sharegate/pkg/store"
	"github.com/lakefabric/sharegate/pkg/timeutil"
)

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.AddCommand(shareCreateCmd)
	shareCmd.AddCommand(shareInfoCmd)
	shareCmd.AddCommand(shareSubmitCmd)
	shareCmd.AddCommand(shareApproveCmd)
	shareCmd.AddCommand(shareRejectCmd)
	shareCmd.AddCommand(shareDeleteCmd)
	shareCmd.AddCommand(shareInboxCmd)
	shareCmd.AddCommand(shareOutboxCmd)
	shareCmd.AddCommand(shareListCmd)
	shareCmd.AddCommand(shareSetPurposeCmd)

	shareCreateCmd.Flags().String("dataset", "", "Dataset URI to request access to (required)")
	shareCreateCmd.Flags().String("env", "", "Target environment URI")
	shareCreateCmd.Flags().String("group", "", "Requesting group (required)")
	shareCreateCmd.Flags().String("principal", "", "Principal receiving the grant (required)")
	shareCreateCmd.Flags().String("principal-type", string(share.PrincipalGroup), "Principal type: Group or ConsumptionRole")
	shareCreateCmd.Flags().String("purpose", "", "Request purpose")
	shareCreateCmd.Flags().String("item", "", "Initial catalog table URI to include")
	shareCreateCmd.MarkFlagRequired("dataset")
	shareCreateCmd.MarkFlagRequired("group")
	shareCreateCmd.MarkFlagRequired("principal")

	shareRejectCmd.Flags().String("purpose", "", "Reason for rejection (required)")
	shareRejectCmd.MarkFlagRequired("purpose")

	shareSetPurposeCmd.Flags().Bool("reject", false, "Set the rejection purpose instead of the request purpose")
}

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Manage share requests",
	Long:  `Commands to request, submit, approve, reject, and delete data shares.`,
}

// colorShareStatus renders a share status for terminal tables.
func colorShareStatus(st share.Status) string {
	switch st {
	case share.StatusProcessed:
		return color.GreenString(string(st))
	case share.StatusRejected, share.StatusRevoked:
		return color.RedString(string(st))
	case share.StatusPendingApproval, share.StatusPendingApproveRevoke:
		return color.YellowString(string(st))
	default:
		return string(st)
	}
}

var shareCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Request access to a dataset",
	Long: `Open a share request in draft state.

At most one active share exists per dataset and principal; requesting
again returns the existing share, adding --item to it when given.

Examples:
  sharegate share create --dataset ds_1a2b3c --group analytics --principal role_analytics \
      --principal-type ConsumptionRole --purpose "Q3 churn analysis"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataset, _ := cmd.Flags().GetString("dataset")
		env, _ := cmd.Flags().GetString("env")
		group, _ := cmd.Flags().GetString("group")
		principalID, _ := cmd.Flags().GetString("principal")
		ptype, _ := cmd.Flags().GetString("principal-type")
		purpose, _ := cmd.Flags().GetString("purpose")
		item, _ := cmd.Flags().GetString("item")

		so, err := brk.CreateShareObject(actor(), broker.CreateShareRequest{
			DatasetURI:     dataset,
			EnvironmentURI: env,
			GroupURI:       group,
			PrincipalID:    principalID,
			PrincipalType:  share.PrincipalType(ptype),
			RequestPurpose: purpose,
			ItemURI:        item,
		})
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(so)
		}
		fmt.Printf("Share request '%s' is %s\n", so.URI, so.Status)
		fmt.Println()
		fmt.Printf("Next: Add items with 'sharegate item add %s <table-uri>', then 'sharegate share submit %s'\n", so.URI, so.URI)
		return nil
	},
}

var shareInfoCmd = &cobra.Command{
	Use:     "info <share-uri>",
	Aliases: []string{"show", "describe"},
	Short:   "Show a share request with its item statistics",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		so, err := brk.GetShareObject(actor(), args[0])
		if err != nil {
			return err
		}
		stats, err := brk.GetShareStatistics(actor(), args[0])
		if err != nil {
			return err
		}
		role, err := brk.ResolveUserRole(actor(), so)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(map[string]any{
				"share":      so,
				"statistics": stats,
				"userRole":   role,
			})
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "URI:\t%s\n", so.URI)
		fmt.Fprintf(w, "Dataset:\t%s\n", so.DatasetURI)
		fmt.Fprintf(w, "Status:\t%s\n", colorShareStatus(so.Status))
		fmt.Fprintf(w, "Requester Group:\t%s\n", so.GroupURI)
		fmt.Fprintf(w, "Principal:\t%s (%s)\n", so.PrincipalID, so.PrincipalType)
		fmt.Fprintf(w, "Requested By:\t%s\n", so.Owner)
		fmt.Fprintf(w, "Your Role:\t%s\n", role)
		if so.RequestPurpose != "" {
			fmt.Fprintf(w, "Purpose:\t%s\n", so.RequestPurpose)
		}
		if so.RejectPurpose != "" {
			fmt.Fprintf(w, "Reject Reason:\t%s\n", so.RejectPurpose)
		}
		fmt.Fprintf(w, "Created:\t%s\n", so.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Items:\t%d total, %d pending, %d shared, %d failed, %d revoked\n",
			stats.TotalItems, stats.Pending, stats.Shared, stats.Failed, stats.Revoked)
		w.Flush()
		return nil
	},
}

var shareSubmitCmd = &cobra.Command{
	Use:   "submit <share-uri>",
	Short: "Submit a share request for approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		so, err := brk.SubmitShareObject(actor(), args[0])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(so)
		}
		fmt.Printf("Share '%s' submitted for approval\n", so.URI)
		return nil
	},
}

var shareApproveCmd = &cobra.Command{
	Use:   "approve <share-uri>",
	Short: "Approve a submitted share request",
	Long: `Approve a share request, queueing a grant for every pending item.

With the in-process queue the grants are applied before the command
returns; with an AMQP queue a running worker applies them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		so, err := brk.ApproveShareObject(ctx, actor(), args[0])
		if err != nil {
			return err
		}
		if err := drainTasks(ctx); err != nil {
			return fmt.Errorf("failed to synchronize grants: %w", err)
		}
		// Re-read: draining moves the share forward.
		so, err = brk.GetShareObject(actor(), so.URI)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(so)
		}
		fmt.Printf("Share '%s' is %s\n", so.URI, colorShareStatus(so.Status))
		return nil
	},
}

var shareRejectCmd = &cobra.Command{
	Use:   "reject <share-uri>",
	Short: "Reject a submitted share request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		purpose, _ := cmd.Flags().GetString("purpose")
		so, err := brk.RejectShareObject(actor(), args[0], purpose)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(so)
		}
		fmt.Printf("Share '%s' rejected\n", so.URI)
		return nil
	},
}

var shareDeleteCmd = &cobra.Command{
	Use:   "delete <share-uri>",
	Short: "Delete a share request",
	Long: `Delete a share request and its items.

Deletion is refused while any item still holds a grant; revoke those
items first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := brk.DeleteShareObject(actor(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted share '%s'\n", args[0])
		return nil
	},
}

var shareSetPurposeCmd = &cobra.Command{
	Use:   "set-purpose <share-uri> <text>",
	Short: "Update a share's request or rejection purpose",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reject, _ := cmd.Flags().GetBool("reject")
		var err error
		if reject {
			err = brk.UpdateRejectPurpose(actor(), args[0], args[1])
		} else {
			err = brk.UpdateRequestPurpose(actor(), args[0], args[1])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Updated purpose on '%s'\n", args[0])
		return nil
	},
}

var shareInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List share requests received by your groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := brk.ListSharesInbox(actor())
		if err != nil {
			return err
		}
		return printShareList(shares, "No received share requests.")
	},
}

var shareOutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "List share requests sent by you or your groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := brk.ListSharesOutbox(actor())
		if err != nil {
			return err
		}
		return printShareList(shares, "No sent share requests.")
	},
}

var shareListCmd = &cobra.Command{
	Use:   "list <dataset-uri>",
	Short: "List share requests against a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := brk.ListSharesByDataset(actor(), args[0])
		if err != nil {
			return err
		}
		return printShareList(shares, "No shares against this dataset.")
	},
}

func printShareList(shares []*store.ShareObject, emptyMsg string) error {
	if outputFormat != "table" {
		if len(shares) == 0 {
			fmt.Println("[]")
			return nil
		}
		return formatOutput(shares)
	}

	if len(shares) == 0 {
		fmt.Println(emptyMsg)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URI\tDATASET\tGROUP\tPRINCIPAL\tSTATUS\tUPDATED")
	for _, so := range shares {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			so.URI, so.DatasetURI, so.GroupURI, so.PrincipalID,
			colorShareStatus(so.Status), timeutil.Relative(so.UpdatedAt))
	}
	w.Flush()
	return nil
}
