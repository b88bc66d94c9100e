package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/tradectl/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the transaction journal",
	Long: `Query and display order attempts recorded in the transaction journal.

Subcommands:
  show   - Details of one transaction by ID (SQLite only)
  today  - Transactions from today
  day    - Transactions from a specific day
  recent - The most recent transactions

Examples:
  tradectl journal show 01JA2Z3Y4X5W6V7U8T9S0R1Q2P
  tradectl journal today
  tradectl journal day 2026-03-02
  tradectl journal recent -n 20`,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <transaction-id>",
	Short: "Get details of a specific transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's transactions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := time.LoadLocation(journalTZ)
		if err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
		return runJournalDay(cmd, []string{time.Now().In(loc).Format("2006-01-02")})
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List transactions from a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent transactions",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var (
	journalType   string
	journalPathFl string
	journalTZ     string
	journalLimit  int
	journalJSON   bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalShowCmd, journalTodayCmd, journalDayCmd, journalRecentCmd)

	journalCmd.PersistentFlags().StringVarP(&journalPathFl, "db", "d", "./tradectl.sqlite", "path to the journal (SQLite DB or CSV file)")
	journalCmd.PersistentFlags().StringVar(&journalType, "type", "sqlite", "journal type: sqlite or csv")
	journalCmd.PersistentFlags().StringVar(&journalTZ, "tz", "America/New_York", "timezone that defines a day")
	journalCmd.PersistentFlags().BoolVar(&journalJSON, "json", false, "print JSON instead of Org-mode")
	journalRecentCmd.Flags().IntVarP(&journalLimit, "limit", "n", journal.DefaultRecent, "number of transactions")
}

func openJournal() (journal.Journal, error) {
	j, err := journal.Open(journalType, journalPathFl)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	sq, ok := j.(*journal.SQLite)
	if !ok {
		return fmt.Errorf("show needs a sqlite journal")
	}
	rec, err := sq.GetTransaction(args[0])
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if journalJSON {
		return printJSON(cmd.OutOrStdout(), rec)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTransactionOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	loc, err := time.LoadLocation(journalTZ)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	start, end, err := dayBounds(loc, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListBetween(start, end)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	if journalJSON {
		return printJSON(cmd.OutOrStdout(), recs)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTransactionsOrg("Transactions "+args[0], recs))
	return nil
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.Recent(journalLimit)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	if journalJSON {
		return printJSON(cmd.OutOrStdout(), recs)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTransactionsOrg(fmt.Sprintf("Last %d transactions", len(recs)), recs))
	return nil
}

// dayBounds returns [midnight, next midnight) of day in loc.
func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
