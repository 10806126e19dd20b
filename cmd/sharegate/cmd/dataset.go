package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakefabric/sharegate/internal/broker"
)

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetCreateCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetInfoCmd)
	datasetCmd.AddCommand(datasetAddTableCmd)
	datasetCmd.AddCommand(datasetTablesCmd)
	datasetCmd.AddCommand(datasetDeleteCmd)
	datasetCmd.AddCommand(datasetTransferCmd)

	datasetCreateCmd.Flags().String("env", "", "Environment URI the dataset lives in")
	datasetCreateCmd.Flags().String("account", "", "Cloud account ID")
	datasetCreateCmd.Flags().String("region", "", "Cloud region")
	datasetCreateCmd.Flags().String("admin-group", "", "Owning group (required)")
	datasetCreateCmd.Flags().String("stewards", "", "Delegated steward group (default: admin group)")
	datasetCreateCmd.MarkFlagRequired("admin-group")
}

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage registered datasets",
	Long:  `Commands to register datasets, manage their tables, and transfer stewardship.`,
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a dataset",
	Long: `Register a data asset with an owning group.

The owning group receives the full owner capability set on the dataset.
A distinct steward group, when given, receives the approver capability set.

Examples:
  sharegate dataset create customer-orders --admin-group data-eng --env env_prod
  sharegate dataset create billing --admin-group finance --stewards data-governance`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, _ := cmd.Flags().GetString("env")
		account, _ := cmd.Flags().GetString("account")
		region, _ := cmd.Flags().GetString("region")
		adminGroup, _ := cmd.Flags().GetString("admin-group")
		stewards, _ := cmd.Flags().GetString("stewards")

		ds, err := brk.CreateDataset(actor(), broker.CreateDatasetRequest{
			Name:           args[0],
			EnvironmentURI: env,
			AwsAccountID:   account,
			Region:         region,
			AdminGroup:     adminGroup,
			Stewards:       stewards,
		})
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(ds)
		}
		fmt.Printf("Registered dataset '%s' (uri: %s)\n", ds.Name, ds.URI)
		fmt.Println()
		fmt.Printf("Next: Add tables with 'sharegate dataset add-table %s <name>'\n", ds.URI)
		return nil
	},
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		datasets, err := brk.ListDatasets()
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(datasets) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(datasets)
		}

		if len(datasets) == 0 {
			fmt.Println("No datasets registered. Use 'sharegate dataset create' to register one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URI\tNAME\tOWNER GROUP\tSTEWARDS\tCREATED")
		for _, ds := range datasets {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				ds.URI, ds.Name, ds.AdminGroup, ds.Stewards, ds.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

var datasetInfoCmd = &cobra.Command{
	Use:     "info <dataset-uri>",
	Aliases: []string{"show", "describe"},
	Short:   "Show dataset details",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := brk.GetDataset(args[0])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(ds)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "URI:\t%s\n", ds.URI)
		fmt.Fprintf(w, "Name:\t%s\n", ds.Name)
		fmt.Fprintf(w, "Environment:\t%s\n", ds.EnvironmentURI)
		fmt.Fprintf(w, "Account:\t%s\n", ds.AwsAccountID)
		fmt.Fprintf(w, "Region:\t%s\n", ds.Region)
		fmt.Fprintf(w, "Owner Group:\t%s\n", ds.AdminGroup)
		fmt.Fprintf(w, "Stewards:\t%s\n", ds.Stewards)
		fmt.Fprintf(w, "Created By:\t%s\n", ds.Owner)
		fmt.Fprintf(w, "Created:\t%s\n", ds.CreatedAt.Format(time.RFC3339))
		w.Flush()
		return nil
	},
}

var datasetAddTableCmd = &cobra.Command{
	Use:   "add-table <dataset-uri> <name>",
	Short: "Add a catalog table to a dataset",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tbl, err := brk.AddDatasetTable(actor(), args[0], args[1])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(tbl)
		}
		fmt.Printf("Added table '%s' (uri: %s)\n", tbl.Name, tbl.URI)
		return nil
	},
}

var datasetTablesCmd = &cobra.Command{
	Use:   "tables <dataset-uri>",
	Short: "List a dataset's tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := brk.ListDatasetTables(args[0])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(tables) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(tables)
		}

		if len(tables) == 0 {
			fmt.Println("No tables in dataset.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URI\tNAME\tCREATED")
		for _, tbl := range tables {
			fmt.Fprintf(w, "%s\t%s\t%s\n", tbl.URI, tbl.Name, tbl.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete <dataset-uri>",
	Short: "Delete a dataset and its shares",
	Long: `Delete a dataset, its tables, and all shares against it.

Deletion is refused while any share item still holds a grant; revoke
those items first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := brk.DeleteDataset(actor(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted dataset '%s'\n", args[0])
		return nil
	},
}

var datasetTransferCmd = &cobra.Command{
	Use:   "transfer <dataset-uri> <new-stewards>",
	Short: "Transfer dataset stewardship to another group",
	Long: `Transfer approval rights over a dataset to a new steward group.

The new group gains the approver capability set on the dataset, its tables,
and every share against it; the previous steward group loses it. The owning
group's capabilities are never removed, even when it held stewardship.

Examples:
  sharegate dataset transfer ds_1a2b3c data-governance`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := brk.TransferStewardship(actor(), args[0], args[1])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			return formatOutput(ds)
		}
		fmt.Printf("Transferred stewardship of '%s' to '%s'\n", ds.Name, ds.Stewards)
		return nil
	},
}
