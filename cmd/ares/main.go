// Command ares is the operator CLI for inspecting and managing the job
// queue, grounded on crawler/cmd/root.go's cobra+viper wiring and
// cmd/sources/list.go's go-pretty table rendering.
package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreabozzo/ares/internal/extraction"
	"github.com/andreabozzo/ares/internal/queue"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ares",
	Short: "Operator CLI for the ares scrape-and-extract job queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute runs the root command.
func Execute() error {
	if err := initConfig(); err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default config/worker.yaml)")

	rootCmd.AddCommand(newJobsCommand())
	rootCmd.AddCommand(newExtractionsCommand())
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("worker")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetDefault("database.dsn", os.Getenv("DATABASE_URL"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// dsn resolves the Postgres connection string from config/env.
func dsn() string {
	if v := viper.GetString("database.dsn"); v != "" {
		return v
	}
	return os.Getenv("DATABASE_URL")
}

// openQueue connects to Postgres and returns a ready Queue together with
// the underlying connection, which the caller must close.
func openQueue() (*queue.Queue, *sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return queue.New(db), db, nil
}

func openExtractionStore() (*extraction.Store, *sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return extraction.New(db), db, nil
}
