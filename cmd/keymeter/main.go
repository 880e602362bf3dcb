package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keymeter",
	Short: "Credential usage aggregation server",
	Long: "keymeter polls the upstream usage endpoint for every stored API credential, " +
		"aggregates the results into a single report and serves it over a JSON API " +
		"and an HTML dashboard.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
