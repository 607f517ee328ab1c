package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreabozzo/ares/internal/domain"
	"github.com/andreabozzo/ares/internal/queue"
	"github.com/andreabozzo/ares/internal/schemareg"
)

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage scrape jobs",
	}
	cmd.AddCommand(newJobsListCommand())
	cmd.AddCommand(newJobsGetCommand())
	cmd.AddCommand(newJobsSubmitCommand())
	cmd.AddCommand(newJobsCancelCommand())
	return cmd
}

func newJobsListCommand() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, db, err := openQueue()
			if err != nil {
				return err
			}
			defer db.Close()

			params := queue.ListParams{Limit: limit}
			if status != "" {
				s := domain.Status(status)
				params.Status = &s
			}

			jobs, err := q.ListJobs(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			renderJobsTable(jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|running|completed|failed|cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to return")
	return cmd
}

func renderJobsTable(jobs []domain.Job) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "URL", "Schema", "Status", "Retries", "Created"})
	for _, j := range jobs {
		t.AppendRow(table.Row{
			j.ID, j.URL, j.SchemaName, j.Status, fmt.Sprintf("%d/%d", j.RetryCount, j.MaxRetries), j.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}

func newJobsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show a single job's full record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			q, db, err := openQueue()
			if err != nil {
				return err
			}
			defer db.Close()

			job, err := q.GetJob(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newJobsSubmitCommand() *cobra.Command {
	var (
		url, schemaName, model, baseURL, schemaFile, schemaRef string
		maxRetries                                             int
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new scrape job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (schemaFile == "") == (schemaRef == "") {
				return fmt.Errorf("exactly one of --schema-file or --schema-ref is required")
			}

			schema, err := resolveSchema(schemaFile, schemaRef)
			if err != nil {
				return err
			}

			q, db, err := openQueue()
			if err != nil {
				return err
			}
			defer db.Close()

			req := domain.CreateJobRequest{
				URL: url, SchemaName: schemaName, Schema: schema, Model: model, BaseURL: baseURL,
			}
			if cmd.Flags().Changed("max-retries") {
				req.MaxRetries = &maxRetries
			}

			job, err := q.CreateJob(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			fmt.Printf("job submitted: %s (status=%s)\n", job.ID, job.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page URL to scrape (required)")
	cmd.Flags().StringVar(&schemaName, "schema-name", "", "logical schema name (required)")
	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "path to a JSON schema document")
	cmd.Flags().StringVar(&schemaRef, "schema-ref", "", "registry reference (e.g. product@v2) resolved against schema_registry.dir")
	cmd.Flags().StringVar(&model, "model", "", "LLM model identifier")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "LLM API base URL override")
	cmd.Flags().IntVar(&maxRetries, "max-retries", domain.DefaultMaxRetries, "maximum retry attempts")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("schema-name")
	return cmd
}

// resolveSchema loads the job's schema document either directly from disk
// (--schema-file) or by name@version against the configured schema
// registry directory (--schema-ref), so an operator who maintains a
// library of named schemas doesn't have to paste the full JSON document
// on every submit.
func resolveSchema(schemaFile, schemaRef string) (domain.JSONBMap, error) {
	if schemaFile != "" {
		raw, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		var schema domain.JSONBMap
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("parse schema file: %w", err)
		}
		return schema, nil
	}

	dir := viper.GetString("schema_registry.dir")
	if dir == "" {
		dir = os.Getenv("SCHEMA_REGISTRY_DIR")
	}
	if dir == "" {
		return nil, fmt.Errorf("--schema-ref requires schema_registry.dir (or SCHEMA_REGISTRY_DIR) to be configured")
	}

	schema, err := schemareg.New(dir).Resolve(schemaRef)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %q: %w", schemaRef, err)
	}
	return schema, nil
}

func newJobsCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a non-terminal job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}

			q, db, err := openQueue()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := q.CancelJob(cmd.Context(), id); err != nil {
				return fmt.Errorf("cancel job: %w", err)
			}
			fmt.Printf("job %s cancelled\n", id)
			return nil
		},
	}
}
