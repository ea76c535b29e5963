package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hrygo/tgmigrate/internal/progress"
)

var (
	flagResetDialogs []string
	flagResetAll     bool
	flagResetForce   bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset one or more conversations (or the whole run) back to Pending.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagResetForce {
			return errors.New("reset is destructive; pass --force to confirm")
		}
		if !flagResetAll && len(flagResetDialogs) == 0 {
			return errors.New("reset requires --dialog <ids> or --all")
		}

		cfg := loadConfig()
		p, err := progress.Load(cfg.ProgressPath)
		if err != nil {
			return err
		}

		if flagResetAll {
			p = progress.ResetAll(p)
		} else {
			for _, id := range flagResetDialogs {
				p = progress.ResetConversation(p, id)
			}
		}

		_, err = progress.Save(cfg.ProgressPath, p)
		return err
	},
}

func init() {
	resetCmd.Flags().StringSliceVar(&flagResetDialogs, "dialog", nil, "conversation ids to reset")
	resetCmd.Flags().BoolVar(&flagResetAll, "all", false, "reset every conversation")
	resetCmd.Flags().BoolVar(&flagResetForce, "force", false, "confirm the destructive reset")
}
