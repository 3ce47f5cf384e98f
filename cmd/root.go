// Package cmd implements the compute-gateway command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the compute-gateway binary.
var rootCmd = &cobra.Command{
	Use:   "compute-gateway",
	Short: "Gateway for provisioning and routing to per-tenant compute workloads",
	Long: `compute-gateway provisions tenant compute workloads on a Kubernetes
cluster and routes HTTP and WebSocket traffic to them by host or path, in
front of a control-plane API for managing presets, computes, organizations,
and API keys.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Exit codes, per the operator-facing CLI contract.
const (
	ExitOK             = 0
	ExitConfigError    = 1
	ExitClusterFailure = 2
)

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return ExitOK
}

func exitCodeFor(err error) int {
	switch {
	case isClusterUnavailable(err):
		fmt.Fprintln(os.Stderr, "error:", err)
		return ExitClusterFailure
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return ExitConfigError
	}
}
