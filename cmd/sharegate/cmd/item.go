package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lakefabric/sharegate/pkg/grants"
	"github.com/lakefabric/sharegate/pkg/share"
)

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemAddCmd)
	itemCmd.AddCommand(itemRemoveCmd)
	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemRevokeCmd)
	itemCmd.AddCommand(itemVerifyCmd)
	itemCmd.AddCommand(itemReapplyCmd)
	itemCmd.AddCommand(itemShareableCmd)

	itemShareableCmd.Flags().Bool("revocable", false, "Only list tables whose item currently holds a grant")
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage share items",
	Long:  `Commands to add, remove, revoke, verify, and reapply share items.`,
}

// colorItemStatus renders an item status for terminal tables.
func colorItemStatus(st share.ItemStatus) string {
	switch st {
	case share.ItemShared:
		return color.GreenString(string(st))
	case share.ItemShareFailed, share.ItemRevokeFailed, share.ItemShareRejected:
		return color.RedString(string(st))
	case share.ItemRevoked:
		return string(st)
	case "":
		return "-"
	default:
		return color.YellowString(string(st))
	}
}

func colorHealth(h share.HealthStatus) string {
	switch h {
	case share.HealthHealthy:
		return color.GreenString(string(h))
	case share.HealthUnhealthy:
		return color.RedString(string(h))
	default:
		return string(h)
	}
}

func colorDrift(d grants.DriftState) string {
	switch d {
	case grants.Consistent:
		return color.GreenString(string(d))
	case grants.NeedsManualReview:
		return color.RedString(string(d))
	default:
		return color.YellowString(string(d))
	}
}

var itemAddCmd = &cobra.Command{
	Use:   "add <share-uri> <table-uri>",
	Short: "Add a catalog table to a share request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := brk.AddSharedItem(actor(), args[0], args[1])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(item)
		}
		fmt.Printf("Added item '%s' for table '%s' (%s)\n", item.URI, item.ItemName, item.Status)
		return nil
	},
}

var itemRemoveCmd = &cobra.Command{
	Use:   "remove <item-uri>",
	Short: "Remove an item from its share request",
	Long: `Remove a share item that does not hold a grant.

Items in a granted state must be revoked first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := brk.RemoveSharedItem(actor(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed item '%s'\n", args[0])
		return nil
	},
}

var itemListCmd = &cobra.Command{
	Use:   "list <share-uri>",
	Short: "List a share's items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := brk.ListShareItems(actor(), args[0])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(items) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(items)
		}

		if len(items) == 0 {
			fmt.Println("No items in share.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URI\tTABLE\tNAME\tSTATUS\tHEALTH\tLAST VERIFIED")
		for _, item := range items {
			verified := "never"
			if item.LastVerificationAt != nil {
				verified = item.LastVerificationAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				item.URI, item.ItemURI, item.ItemName,
				colorItemStatus(item.Status), colorHealth(item.HealthStatus), verified)
		}
		w.Flush()
		return nil
	},
}

var itemRevokeCmd = &cobra.Command{
	Use:   "revoke <share-uri> <item-uri>...",
	Short: "Revoke grants for share items",
	Long: `Queue revocation for the named items. All named items must currently
hold a grant; the request is refused as a whole otherwise.

With the in-process queue the revocations are applied before the command
returns; with an AMQP queue a running worker applies them.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		so, err := brk.RevokeItems(ctx, actor(), args[0], args[1:])
		if err != nil {
			return err
		}
		if err := drainTasks(ctx); err != nil {
			return fmt.Errorf("failed to synchronize revocations: %w", err)
		}
		so, err = brk.GetShareObject(actor(), so.URI)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(so)
		}
		fmt.Printf("Revoked %d item(s); share '%s' is %s\n", len(args)-1, so.URI, colorShareStatus(so.Status))
		return nil
	},
}

var itemVerifyCmd = &cobra.Command{
	Use:   "verify <share-uri> [item-uri]...",
	Short: "Verify items against the grant substrate",
	Long: `Compare each item's stored status against the substrate's actual grant
state and record the resulting health. Without item URIs, all of the
share's items are verified.

Drift is reported, never corrected; follow up with 'sharegate item
reapply' or manual review.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := brk.VerifyItems(context.Background(), actor(), args[0], args[1:])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(results) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(results)
		}

		if len(results) == 0 {
			fmt.Println("No items to verify.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tSTATUS\tDRIFT")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.ItemURI, colorItemStatus(r.Status), colorDrift(r.Drift))
		}
		w.Flush()
		return nil
	},
}

var itemReapplyCmd = &cobra.Command{
	Use:   "reapply <share-uri> <item-uri>...",
	Short: "Re-run synchronization for failed items",
	Long: `Re-queue synchronization for items in a failed state. Items past the
reapply attempt limit are flagged unhealthy for manual review instead.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		res, err := brk.ReapplyItems(ctx, actor(), args[0], args[1:])
		if err != nil {
			return err
		}
		if err := drainTasks(ctx); err != nil {
			return fmt.Errorf("failed to synchronize grants: %w", err)
		}

		if outputFormat != "table" {
			return formatOutput(map[string]any{
				"requeued": len(res.Tasks),
				"flagged":  res.Flagged,
			})
		}
		fmt.Printf("Re-queued %d item(s)\n", len(res.Tasks))
		for _, uri := range res.Flagged {
			fmt.Printf("Flagged for manual review: %s\n", uri)
		}
		return nil
	},
}

var itemShareableCmd = &cobra.Command{
	Use:   "shareable <share-uri>",
	Short: "List the dataset's tables merged with the share's items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revocable, _ := cmd.Flags().GetBool("revocable")
		objects, err := brk.ListShareableObjects(actor(), args[0], revocable)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(objects) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(objects)
		}

		if len(objects) == 0 {
			fmt.Println("No shareable objects.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tNAME\tITEM\tSTATUS")
		for _, o := range objects {
			itemRow := o.ItemRowURI
			if itemRow == "" {
				itemRow = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.TableURI, o.TableName, itemRow, colorItemStatus(o.Status))
		}
		w.Flush()
		return nil
	},
}
