// Package farm holds the commands that compile, plan, deploy and inspect the farm contracts.
package farm

import (
	"time"

	"github.com/spf13/cobra"
)

const (
	flagRPCURL         = "rpc-url"
	flagFresh          = "fresh"
	flagDiscardPending = "discard-pending"
	flagFormat         = "format"
)

var (
	// persistentStringFlags are declared on the root command and shared by every subcommand.
	persistentStringFlags = []flagDef[string]{
		{"network", "network", "", "Network to operate on (bsc, polygon, metis, ...)"},
		{"deployments-dir", "deployments-dir", "", "Directory holding <network>.json deployment documents"},
		{"log-level", "log-level", "", "Log level (debug, info, warn, error)"},
		{"log-format", "log-format", "", "Log format (json or text)"},
	}

	deployStringFlags = []flagDef[string]{
		{flagRPCURL, "", "", "RPC endpoint overriding the network configuration"},
		{"artifacts", "artifacts", "", "Compiled contracts.json or hardhat artifacts directory"},
	}

	deployIntFlags = []flagDef[int]{
		{"gas-limit", "deploy.gas-limit", 0, "Gas limit for every transaction (0 estimates)"},
	}

	deployDurationFlags = []flagDef[time.Duration]{
		{"confirmation-timeout", "deploy.confirmation-timeout", 0, "Maximum wait for each transaction receipt"},
	}

	deployBoolFlags = []flagDef[bool]{
		{flagFresh, "", false, "Redeploy contracts already recorded for the network"},
		{flagDiscardPending, "", false, "Forget transactions journaled by an interrupted run instead of waiting for them"},
	}

	showStringFlags = []flagDef[string]{
		{flagFormat, "", "json", "Output format (json or yaml)"},
	}

	compileStringFlags = []flagDef[string]{
		{"image", "compiler.image", "", "solc docker image"},
		{"sources-dir", "compiler.sources-dir", "", "Directory with the .sol sources"},
		{"output", "compiler.output", "", "Path of the generated contracts.json"},
	}

	compileIntFlags = []flagDef[int]{
		{"optimizer-runs", "compiler.optimizer-runs", 0, "solc optimizer runs (0 disables the optimizer)"},
	}
)

func init() {
	mustDeclare(declareFlags(deployCmd.Flags(), deployStringFlags))
	mustDeclare(declareFlags(deployCmd.Flags(), deployIntFlags))
	mustDeclare(declareFlags(deployCmd.Flags(), deployDurationFlags))
	mustDeclare(declareFlags(deployCmd.Flags(), deployBoolFlags))

	mustDeclare(declareFlags(showCmd.Flags(), showStringFlags))

	mustDeclare(declareFlags(compileCmd.Flags(), compileStringFlags))
	mustDeclare(declareFlags(compileCmd.Flags(), compileIntFlags))
}

// DeclarePersistentFlags declares the flags shared by all commands on root.
func DeclarePersistentFlags(root *cobra.Command) error {
	return declareFlags(root.PersistentFlags(), persistentStringFlags)
}

// Commands returns the farm subcommands.
func Commands() []*cobra.Command {
	return []*cobra.Command{deployCmd, showCmd, planCmd, compileCmd}
}
