package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tutord/internal/manifest"
)

var (
	listNamespace string
	listLimit     int
)

func init() {
	indexListCmd.Flags().StringVar(&listNamespace, "namespace", "", "only list this namespace")
	indexListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum records to print (0 for all)")

	indexCmd.AddCommand(indexListCmd)
	indexCmd.AddCommand(indexDropCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider chains and index state",
	Long: `Show which embedding and generation providers are active, which were
skipped and why, and how much material is indexed.

Examples:
  # Print status as JSON
  tutord status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage index namespaces",
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents from the manifest",
	Long: `List manifest records, newest first: origin, namespace, status and the
number of chunks each document holds in the index.

Examples:
  # The 50 most recent ingestions
  tutord index list

  # Everything in one course
  tutord index list --namespace course_jp101 --limit 0`,
	Args: cobra.NoArgs,
	RunE: runIndexList,
}

var indexDropCmd = &cobra.Command{
	Use:   "drop <namespace>",
	Short: "Delete a namespace and its manifest records",
	Long: `Delete every chunk in a namespace, forget its embedding dimension and
remove its manifest records. Use this after switching embedding providers.

Examples:
  # Drop a course namespace
  tutord index drop course_jp101`,
	Args: cobra.ExactArgs(1),
	RunE: runIndexDrop,
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	return printJSON(cmd.OutOrStdout(), rt.svc.SystemStatus(cmd.Context()))
}

func runIndexList(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	records, err := rt.svc.Documents(cmd.Context(), listNamespace, listLimit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []manifest.Record{}
	}
	return printJSON(cmd.OutOrStdout(), records)
}

func runIndexDrop(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	removed, err := rt.svc.DropNamespace(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dropped %s (%d manifest records)\n", args[0], removed)
	return nil
}
