package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var wallet string

type balance struct {
	Wallet  string `json:"wallet"`
	Credits uint   `json:"credits"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the credit balance of a wallet.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&wallet, "wallet", "w", "", "Wallet address to query.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/wallets/%s/balance", publicURL, wallet))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	var bal balance
	if err := decoder.Decode(&bal); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Wallet: %s  Credits: %d\n", bal.Wallet, bal.Credits)
}
