package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forceImport bool

var importCmd = &cobra.Command{
	Use:   "import [source]",
	Short: "Import a store dataset into the index",
	Long: `Reads a CSV or XLSX dataset from a local path or an s3://bucket/key
location. Without a source argument the configured source is used. The
in-memory index is written to its snapshot afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&forceImport, "force", false, "Import even when the index already holds stores")
}

func runImport(cmd *cobra.Command, args []string) error {
	location := cfg.Import.Source
	if len(args) == 1 {
		location = args[0]
	}
	if location == "" {
		return fmt.Errorf("no import source given")
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := importSource(cmd.Context(), b.index, cfg, location, forceImport)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Println("Index already holds stores, nothing imported (use --force to import anyway)")
		return nil
	}

	fmt.Printf("Imported %d stores, rejected %d rows\n", res.Imported, res.Rejected)
	return b.snapshot()
}
