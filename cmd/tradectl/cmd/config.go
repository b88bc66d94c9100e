package cmd

import (
	"fmt"

	"github.com/rustyeddy/tradectl/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage daemon configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradectl config init -o tradectl.yaml
  tradectl config validate -f tradectl.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check that a configuration file loads and passes validation,
including environment overrides.

Example:
  tradectl config validate -f tradectl.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "tradectl.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	_ = configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  tradectl serve -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Window:    %s-%s %s\n", cfg.Window.PreMarketStart, cfg.Window.ExtendedHoursEnd, cfg.Window.Timezone)
	fmt.Fprintf(out, "  Limits:    %d trades/hour, stop-loss %.2f, profit-target %.2f\n",
		cfg.Limits.MaxTradesPerHour, cfg.Limits.DailyStopLoss, cfg.Limits.DailyProfitTarget)
	fmt.Fprintf(out, "  Broker:    %s\n", cfg.Broker.Type)
	fmt.Fprintf(out, "  Strategy:  %s\n", cfg.Strategy.Name)
	fmt.Fprintf(out, "  Portfolio: %s\n", cfg.Portfolio.Name)
	fmt.Fprintf(out, "  Journal:   %s\n", cfg.Journal.Type)
	return nil
}
