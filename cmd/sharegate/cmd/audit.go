package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskInfoCmd)

	auditListCmd.Flags().Int("limit", 100, "Maximum number of records")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent audit records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		records, err := brk.Store().ListAudit(limit)
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(records) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(records)
		}

		if len(records) == 0 {
			fmt.Println("No audit records.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tEVENT\tSEVERITY\tACTOR\tTARGET\tDETAILS")
		for _, rec := range records {
			details := rec.Details
			if details == "" {
				details = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				rec.Timestamp.Format(time.RFC3339), rec.EventType, rec.Severity,
				rec.Actor, rec.Target, details)
		}
		w.Flush()
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect synchronization tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list <share-uri>",
	Short: "List synchronization tasks recorded against a share",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := brk.Store().ListTasksByShare(args[0])
		if err != nil {
			return err
		}

		if outputFormat != "table" {
			if len(tasks) == 0 {
				fmt.Println("[]")
				return nil
			}
			return formatOutput(tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tTARGET\tSTATUS\tCOMPLETED")
		for _, t := range tasks {
			completed := "-"
			if t.CompletedAt != nil {
				completed = t.CompletedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.TaskType, t.TargetURI, t.Status, completed)
		}
		w.Flush()
		return nil
	},
}

var taskInfoCmd = &cobra.Command{
	Use:     "info <task-id>",
	Aliases: []string{"show"},
	Short:   "Show one synchronization task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := brk.Store().GetTaskRecord(args[0])
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("task not found: %s", args[0])
		}

		if outputFormat != "table" {
			return formatOutput(t)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID:\t%s\n", t.ID)
		fmt.Fprintf(w, "Type:\t%s\n", t.TaskType)
		fmt.Fprintf(w, "Target:\t%s\n", t.TargetURI)
		fmt.Fprintf(w, "Share:\t%s\n", t.ShareURI)
		fmt.Fprintf(w, "Status:\t%s\n", t.Status)
		if t.Error != nil {
			fmt.Fprintf(w, "Error:\t%s\n", *t.Error)
		}
		fmt.Fprintf(w, "Created:\t%s\n", t.CreatedAt.Format(time.RFC3339))
		if t.CompletedAt != nil {
			fmt.Fprintf(w, "Completed:\t%s\n", t.CompletedAt.Format(time.RFC3339))
		}
		w.Flush()
		return nil
	},
}
