// Command fixit serves the technician-request intake form and runs a
// scripted walkthrough of it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fixit/internal/core"
)

var (
	cfg    *core.Config
	policy core.Policy
	logger core.Logger

	policyFile string
)

var rootCmd = &cobra.Command{
	Use:   "fixit",
	Short: "Technician request intake form",
	Long: `fixit collects a repair request through a multi-step form: device,
problem description, photos, priority, address, contact details and
preferred visit dates.

Configuration is read from the environment (FIXIT_*, GEMINI_API_KEY,
ANTHROPIC_API_KEY, LOG_LEVEL). Domain knobs live in an optional YAML
policy file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = core.LoadConfig()
		if err != nil {
			return err
		}
		if policyFile != "" {
			cfg.PolicyFile = policyFile
		}
		policy, err = core.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return err
		}
		logger = core.NewLogger(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "YAML policy file (overrides FIXIT_POLICY_FILE)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
