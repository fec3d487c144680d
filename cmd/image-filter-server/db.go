package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/image-filter-server/internal/store"
)

func newInitDBCmd() *cobra.Command {
	var deleteExisting bool
	cmd := &cobra.Command{
		Use:   "initdb <path>",
		Short: "Create the usage database",
		Long: `Initdb creates the SQLite usage database and registers every supported
filter. It refuses to overwrite an existing database unless --delete is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if deleteExisting {
				if err := store.Remove(path); err != nil {
					return err
				}
			}
			st, err := store.Create(path, kindNames())
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with %d filters\n", path, len(kindNames()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&deleteExisting, "delete", false, "Delete an existing database first")
	return cmd
}

func newRecordsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Print the most recent usage records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListRecords(context.Background(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tCLIENT\tFILTERS")
			for _, r := range recs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Timestamp.Local().Format(time.RFC3339), r.ClientAddress, strings.Join(r.Filters, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "usage.db", "Path to the SQLite usage database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to print (0: all)")
	return cmd
}
