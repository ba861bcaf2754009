package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Push the full board to every connected viewer.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := post(fmt.Sprintf("%s/v1/canvas/resync", privateURL), nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(resyncCmd)
}
