package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newExtractionsCommand() *cobra.Command {
	var (
		url, schemaName string
		limit           int
	)

	cmd := &cobra.Command{
		Use:   "extractions",
		Short: "Show extraction history for a (url, schema) pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, db, err := openExtractionStore()
			if err != nil {
				return err
			}
			defer db.Close()

			history, err := store.GetHistory(cmd.Context(), url, schemaName, limit)
			if err != nil {
				return fmt.Errorf("get extraction history: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Data Hash", "Model", "Created"})
			for _, e := range history {
				t.AppendRow(table.Row{e.ID, e.DataHash[:12] + "...", e.Model, e.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page URL (required)")
	cmd.Flags().StringVar(&schemaName, "schema-name", "", "logical schema name (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to return")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("schema-name")
	return cmd
}
