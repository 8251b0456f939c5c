package cli

import (
	"fmt"

	"github.com/mgpai22/chitra/internal/session"
	"github.com/spf13/cobra"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the preset videos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := session.LoadCatalog(cfg.PresetsFile)
		if err != nil {
			return err
		}
		for _, p := range catalog.List() {
			fmt.Printf("%s: %s", p.ID, p.Name)
			if p.Description != "" {
				fmt.Printf(" - %s", p.Description)
			}
			fmt.Printf("\n    %s\n", p.Source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
