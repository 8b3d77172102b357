package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ./block-stm run --txs 10000 --accounts 100 --executors 8
func main() {
	mainCmd := &cobra.Command{Use: "block-stm", SilenceUsage: true}
	mainCmd.AddCommand(RunCMD())

	if err := mainCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
