// Package cmd contains the admin commands for the canvas service.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	publicURL  string
	privateURL string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&publicURL, "url", "u", "http://localhost:8080", "Url of the public API.")
	rootCmd.PersistentFlags().StringVarP(&privateURL, "private-url", "r", "http://localhost:9080", "Url of the private API.")
}

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Canvas service administration",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// post sends a JSON payload to the specified url and prints the response
// body.
func post(url string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	resp, err := http.Post(url, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	fmt.Println(string(out))
	return nil
}
