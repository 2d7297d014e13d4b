package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "runbox",
	Short: "runbox - sandboxed multi-language code execution",
	Long: `runbox runs untrusted programs in throwaway Docker containers.

Every submission gets a fresh, network-less container that is destroyed as
soon as the program finishes, times out or floods its output.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: runbox.yaml in . or /etc/runbox)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
