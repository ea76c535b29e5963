package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/hrygo/tgmigrate/internal/enumerator"
	"github.com/hrygo/tgmigrate/internal/model"
)

var flagListType string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the source account's conversations as structured JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		convs, err := enumerator.ListAll(cmd.Context(), client)
		if err != nil {
			return err
		}

		if flagListType != "" {
			convs = enumerator.Apply(convs, enumerator.Filter{IncludeTypes: []model.ConversationType{model.ConversationType(flagListType)}})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(convs)
	},
}

func init() {
	listCmd.Flags().StringVar(&flagListType, "type", "", "restrict the listing to one conversation type")
}
