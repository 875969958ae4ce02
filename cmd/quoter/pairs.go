package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"quoter/internal/catalog"

	"github.com/spf13/cobra"
)

var pairsMode string

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "List the tradable pairs",
	Long: `List the pair catalog, optionally for one mode.

Examples:
  quoter pairs
  quoter pairs --mode CRYPTO_CRYPTO`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs := catalog.All()
		if pairsMode != "" {
			mode, err := catalog.ParseMode(pairsMode)
			if err != nil {
				return err
			}
			pairs = catalog.Options(mode)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "ID\tLABEL\tSYMBOL\tMODE\n")
		for _, p := range pairs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Label, p.Symbol, p.Mode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairsCmd)
	pairsCmd.Flags().StringVar(&pairsMode, "mode", "", "EUR_CRYPTO or CRYPTO_CRYPTO")
}
