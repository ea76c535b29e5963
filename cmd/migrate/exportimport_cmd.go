package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hrygo/tgmigrate/internal/progress"
)

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export the current progress file to path in the wrapped export format.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := progress.Load(cfg.ProgressPath)
		if err != nil {
			return err
		}

		data, err := progress.Export(p)
		if err != nil {
			return err
		}
		return os.WriteFile(args[0], []byte(data), 0o600)
	},
}

var flagImportStrategy string

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import and merge an exported progress file into the current one.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		existing, err := progress.Load(cfg.ProgressPath)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		imported, err := progress.Import(string(data))
		if err != nil {
			return err
		}

		merged := progress.Merge(existing, imported, progress.MergeStrategy(flagImportStrategy))
		_, err = progress.Save(cfg.ProgressPath, merged)
		return err
	},
}

func init() {
	importCmd.Flags().StringVar(&flagImportStrategy, "strategy", string(progress.MergeProgress), "merge strategy: overwrite_all|skip_completed|merge_progress")
}
