package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/tradectl/api"
	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusShort {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := api.NewClient(clientAddr, clientToken).Status(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), statusLine(st))
			return err
		}
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.Status(ctx)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause automatic trading",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.Pause(ctx)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume automatic trading (a daily halt stays in force)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.Resume(ctx)
		})
	},
}

var modeCmd = &cobra.Command{
	Use:       "mode <stock|options>",
	Short:     "Switch the trading mode from the next tick on",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stock", "options"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.SetMode(ctx, args[0])
		})
	},
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Switch background portfolio management on or off",
}

var portfolioStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start portfolio management from the next tick on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.StartPortfolio(ctx)
		})
	},
}

var portfolioStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop portfolio management on the next tick",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.StopPortfolio(ctx)
		})
	},
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Submit a manual order through the daemon's safety checks",
	Long: `Submit a manual order. It passes the same trading window, daily halt
and hourly trade cap as automatic orders.

Example:
  tradectl order --symbol AAPL --qty 1 --side buy
  tradectl order --symbol SPY --qty 2 --side sell --type limit --limit 512.25 --tif day`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := broker.Order{
			Symbol:      orderSymbol,
			Qty:         orderQty,
			Side:        broker.Side(orderSide),
			OrderType:   orderType,
			TimeInForce: orderTIF,
			LimitPrice:  orderLimit,
		}
		return withClient(cmd, func(ctx context.Context, c *api.Client) (any, error) {
			return c.Order(ctx, o)
		})
	},
}

var statusShort bool

var (
	orderSymbol string
	orderQty    float64
	orderSide   string
	orderType   string
	orderTIF    string
	orderLimit  float64
)

func init() {
	rootCmd.AddCommand(statusCmd, pauseCmd, resumeCmd, modeCmd, orderCmd, portfolioCmd)
	portfolioCmd.AddCommand(portfolioStartCmd, portfolioStopCmd)

	statusCmd.Flags().BoolVarP(&statusShort, "short", "s", false, "print a one-line summary")

	orderCmd.Flags().StringVar(&orderSymbol, "symbol", "", "ticker symbol (required)")
	orderCmd.Flags().Float64Var(&orderQty, "qty", 0, "quantity (required)")
	orderCmd.Flags().StringVar(&orderSide, "side", "buy", "buy or sell")
	orderCmd.Flags().StringVar(&orderType, "type", "market", "market or limit")
	orderCmd.Flags().StringVar(&orderTIF, "tif", "gtc", "time in force: day, gtc, ioc, fok, opg, cls")
	orderCmd.Flags().Float64Var(&orderLimit, "limit", 0, "limit price for limit orders")
	_ = orderCmd.MarkFlagRequired("symbol")
	_ = orderCmd.MarkFlagRequired("qty")
}

func withClient(cmd *cobra.Command, fn func(context.Context, *api.Client) (any, error)) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	v, err := fn(ctx, api.NewClient(clientAddr, clientToken))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), v)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// statusLine is the one-line form of status --short.
func statusLine(st daemon.Status) string {
	line := fmt.Sprintf("%s mode=%s trades=%d/%d pl=%.2f", st.State, st.Mode, st.TradesThisHour, st.MaxTradesPerHour, st.DailyPL)
	if st.Portfolio {
		line += " portfolio=on"
	}
	return line
}
