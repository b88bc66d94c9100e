package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradectl",
	Short: "Automated trading control daemon",
	Long: `tradectl runs an automated trading loop behind hard safety limits and
exposes a small HTTP control plane to watch and steer it.

It provides:
  - A periodic control loop that asks a strategy evaluator for orders
  - A sliding one-hour trade cap and daily stop-loss / profit-target halts
  - A pre-market to extended-hours trading window
  - Crash-safe state snapshots that survive restarts
  - Pause, resume, mode switch and manual orders over HTTP
  - A transaction journal of every order attempt

Start the daemon with "tradectl serve -f tradectl.yaml" and drive it with
the status, pause, resume, mode and order commands.`,
	SilenceUsage: true,
}

var (
	clientAddr  string
	clientToken string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&clientAddr, "addr", envOr("TRADECTL_ADDR", "127.0.0.1:8000"), "control plane address")
	rootCmd.PersistentFlags().StringVar(&clientToken, "token", os.Getenv("TRADECTL_API_TOKEN"), "control plane bearer token")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
