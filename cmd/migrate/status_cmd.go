package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/hrygo/tgmigrate/internal/progress"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current progress file as structured JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := progress.Load(cfg.ProgressPath)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}
