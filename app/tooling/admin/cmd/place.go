package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var (
	placeX     int
	placeY     int
	placeColor string
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Set a pixel directly, without spending a credit.",
	Run: func(cmd *cobra.Command, args []string) {
		payload := struct {
			X     int    `json:"x"`
			Y     int    `json:"y"`
			Color string `json:"color"`
		}{
			X:     placeX,
			Y:     placeY,
			Color: placeColor,
		}

		if err := post(fmt.Sprintf("%s/v1/canvas/place", privateURL), payload); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(placeCmd)
	placeCmd.Flags().IntVarP(&placeX, "x", "x", 0, "X coordinate.")
	placeCmd.Flags().IntVarP(&placeY, "y", "y", 0, "Y coordinate.")
	placeCmd.Flags().StringVarP(&placeColor, "color", "c", "#000000", "Hex color to set.")
}
