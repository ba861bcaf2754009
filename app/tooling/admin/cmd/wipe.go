package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Remove every pixel and push the empty board to all viewers.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := post(fmt.Sprintf("%s/v1/canvas/wipe", privateURL), nil); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(wipeCmd)
}
