package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "restq",
	Short: "REST-over-SQL gateway with a query-string filter language",
	Long: `restq reflects a relational schema at startup and serves each table as a
REST collection. Query strings compile to parameterized SQL for MySQL,
Postgres, SQL Server and embedded SQLite.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./restq.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
