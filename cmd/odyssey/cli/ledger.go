package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// IntegrityRunner executes a ledger integrity check.
type IntegrityRunner interface {
	Run(ctx context.Context, asOf time.Time) (jobs.IntegrityReport, error)
}

// LedgerOpsCLI offers operational helpers around the general ledger.
type LedgerOpsCLI struct {
	runner  IntegrityRunner
	printer *message.Printer
	now     func() time.Time
}

// NewLedgerOpsCLI constructs the helper around an integrity runner.
func NewLedgerOpsCLI(runner IntegrityRunner) (*LedgerOpsCLI, error) {
	if runner == nil {
		return nil, errors.New("ledger cli: integrity runner required")
	}
	return &LedgerOpsCLI{
		runner:  runner,
		printer: message.NewPrinter(language.English),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// LedgerVerifyOptions defines available flags for the ledger verify command.
type LedgerVerifyOptions struct {
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifyCommand runs the integrity check and prints the outcome. The exit
// code is 10 when drift or an imbalance was found.
func (c *LedgerOpsCLI) VerifyCommand(ctx context.Context, opts LedgerVerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	asOf := c.now()
	if raw := strings.TrimSpace(opts.AsOf); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: invalid as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return 1
		}
		asOf = parsed
	}
	report, err := c.runner.Run(ctx, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(report); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger verify: encode json: %v\n", err)
			return 1
		}
	} else {
		c.renderHuman(opts.Stdout, report)
	}
	if !report.Healthy() {
		return 10
	}
	return 0
}

func (c *LedgerOpsCLI) renderHuman(out io.Writer, report jobs.IntegrityReport) {
	_, _ = fmt.Fprintf(out, "Ledger integrity as of %s\n", report.AsOf.Format(time.DateOnly))
	_, _ = c.printer.Fprintf(out, "Trial balance: debit %s, credit %s, difference %s\n",
		c.amount(report.TotalDebit), c.amount(report.TotalCredit), c.amount(report.Difference))
	if report.Balanced {
		_, _ = fmt.Fprintln(out, "Trial balance is balanced.")
	} else {
		_, _ = fmt.Fprintln(out, "Trial balance is OUT OF BALANCE.")
	}
	if len(report.Drifts) == 0 {
		_, _ = fmt.Fprintln(out, "Stored balances match posted history.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d account(s) drifted:\n", len(report.Drifts))
	for _, d := range report.Drifts {
		_, _ = c.printer.Fprintf(out, " - %s expected %.2f stored %.2f (difference %.2f)\n",
			d.Code, d.Expected.InexactFloat64(), d.Stored.InexactFloat64(), d.Difference.InexactFloat64())
	}
}

func (c *LedgerOpsCLI) amount(raw string) string {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	return c.printer.Sprintf("%.2f", d.InexactFloat64())
}
