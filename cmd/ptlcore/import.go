package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ptl-core/internal/topology"
)

// ImportCmd returns the import command.
func ImportCmd(configPath *string) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the topology from an Excel workbook",
		Long: `Read endpoints, shelves and units from an .xlsx workbook and store
them as the new topology. A running service picks the change up on
POST /api/v1/configuration/reload or the MQTT reload command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening workbook: %w", err)
			}
			defer f.Close()

			units, err := topology.ImportWorkbook(f)
			if err != nil {
				return fmt.Errorf("reading workbook %s: %w", file, err)
			}
			out := cmd.OutOrStdout()
			printUnits(out, units)
			if dryRun {
				fmt.Fprintf(out, "%d unit(s) read, nothing saved\n", len(units))
				return nil
			}

			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := openDatabase(ctx, cfg.Database, true)
			if err != nil {
				return err
			}
			defer db.Close()

			saved, err := topology.NewSQLiteRepository(db.DB).Save(ctx, units)
			if err != nil {
				return fmt.Errorf("saving topology: %w", err)
			}
			fmt.Fprintf(out, "saved %d unit(s)\n", len(saved))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the .xlsx workbook")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and print without saving")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
