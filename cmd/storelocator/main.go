package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kass/go-store-locator/pkg/config"
	"github.com/kass/go-store-locator/pkg/logging"
)

var (
	configFile string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "storelocator",
	Short: "Find stores near a location",
	Long: `Serves proximity queries over a store dataset held in an in-memory
R-tree or a PostGIS table, and imports datasets from CSV, XLSX or S3.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if err := logging.Setup(c.Log.Level, c.Log.Format, nil); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd, importCmd, queryCmd, generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
