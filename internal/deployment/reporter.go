package deployment

import (
	"io"
	"os"

	"github.com/compose-network/farm-deployer/internal/deployment/plan"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
)

type (
	// Reporter receives operator-facing progress notices.
	Reporter interface {
		Submitted(step plan.Step, tx common.Hash)
		Deployed(step plan.Step, address common.Address)
		Confirmed(step plan.Step, tx common.Hash)
		Skipped(step plan.Step, address common.Address)
	}

	// ConsoleReporter prints colored notices, one per line.
	ConsoleReporter struct {
		out     io.Writer
		info    *color.Color
		success *color.Color
		skipped *color.Color
	}

	nopReporter struct{}
)

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}

	return &ConsoleReporter{
		out:     out,
		info:    color.New(color.FgCyan),
		success: color.New(color.FgGreen),
		skipped: color.New(color.FgYellow),
	}
}

func (r *ConsoleReporter) Submitted(step plan.Step, tx common.Hash) {
	r.info.Fprintf(r.out, "%s submitted in txn: %s\n", step.Name, tx.Hex())
}

func (r *ConsoleReporter) Deployed(step plan.Step, address common.Address) {
	r.success.Fprintf(r.out, "%s deployed to: %s\n", step.RecordName(), address.Hex())
}

func (r *ConsoleReporter) Confirmed(step plan.Step, tx common.Hash) {
	r.success.Fprintf(r.out, "%s confirmed in txn: %s\n", step.Name, tx.Hex())
}

func (r *ConsoleReporter) Skipped(step plan.Step, address common.Address) {
	r.skipped.Fprintf(r.out, "%s already deployed at: %s (skipped)\n", step.RecordName(), address.Hex())
}

func (nopReporter) Submitted(plan.Step, common.Hash)   {}
func (nopReporter) Deployed(plan.Step, common.Address) {}
func (nopReporter) Confirmed(plan.Step, common.Hash)   {}
func (nopReporter) Skipped(plan.Step, common.Address)  {}
