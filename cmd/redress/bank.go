package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"redress/internal/bank"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Inspect the repair bank",
}

var bankListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored repair patterns",
	RunE:  runBankList,
}

func init() {
	bankListCmd.Flags().StringVar(&bankPath, "bank", "", "path to the repair bank file (default: from config)")
	bankCmd.AddCommand(bankListCmd)
}

func runBankList(cmd *cobra.Command, args []string) error {
	path := cfg.Bank.Path
	if bankPath != "" {
		path = bankPath
	}
	b, err := bank.Open(path, logger)
	if err != nil {
		return err
	}
	if b.Corrupted() {
		fmt.Println(failStyle.Render("bank file was corrupted; showing an empty bank"))
	}
	entries := b.Entries()
	if len(entries) == 0 {
		fmt.Println(dimStyle.Render("bank is empty: " + path))
		return nil
	}
	fmt.Printf("%s (%d entries)\n", path, len(entries))
	for i, e := range entries {
		fmt.Printf("\n[%d] oracles=%v codes=%v\n", i+1, e.Signature.FailedOracles, e.Signature.ErrorCodes)
		if len(e.Signature.Context) > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("    context: %v", e.Signature.Context)))
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("    ops=%d holes=%d constraints=%d successes=%d",
			len(e.Template.Ops), e.HoleSpace.Len(), len(e.Constraints), e.Meta.SuccessCount)))
		fmt.Println(dimStyle.Render(fmt.Sprintf("    first_used=%s last_used=%s",
			e.Meta.FirstUsed.Format("2006-01-02 15:04:05"), e.Meta.LastUsed.Format("2006-01-02 15:04:05"))))
		fmt.Println(dimStyle.Render("    assignment: " + e.Assignment.String()))
	}
	return nil
}
