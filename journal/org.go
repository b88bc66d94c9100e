package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTransactionOrg renders a transaction as an Org-mode heading with
// the structured facts in a PROPERTIES drawer.
func FormatTransactionOrg(t Transaction) string {
	heading := fmt.Sprintf("** %s %s %g %s [%s] (%s)",
		strings.ToUpper(string(t.Outcome)), t.Side, t.Qty, t.Symbol, t.Source, shortID(t.ID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":SOURCE: %s\n", t.Source)
	fmt.Fprintf(&b, ":MODE: %s\n", t.Mode)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":QTY: %g\n", t.Qty)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":ORDER_TYPE: %s\n", t.OrderType)
	fmt.Fprintf(&b, ":TIME_IN_FORCE: %s\n", t.TimeInForce)
	fmt.Fprintf(&b, ":OUTCOME: %s\n", t.Outcome)
	if t.OrderID != "" {
		fmt.Fprintf(&b, ":ORDER_ID: %s\n", t.OrderID)
		fmt.Fprintf(&b, ":FILL_PRICE: %.4f\n", t.FillPrice)
	}
	fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", t.RealizedPL)
	if t.Reason != "" {
		fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	}
	b.WriteString(":END:\n")

	return b.String()
}

// FormatTransactionsOrg renders a day's transactions under one heading
// with a P/L summary line.
func FormatTransactionsOrg(title string, txs []Transaction) string {
	var accepted int
	var pl float64
	for _, t := range txs {
		if t.Outcome == Accepted {
			accepted++
			pl += t.RealizedPL
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "* %s\n", title)
	fmt.Fprintf(&b, "- Attempts: %d  Accepted: %d  Realized P/L: %.2f\n", len(txs), accepted, pl)
	for _, t := range txs {
		b.WriteString("\n")
		b.WriteString(FormatTransactionOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
